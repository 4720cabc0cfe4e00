package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tally/internal/cache"
	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/database"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/lifecycle"
	"github.com/rafaeljc/tally/internal/logger"
	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/store"
)

const poolMonitorInterval = 15 * time.Second

// app holds the wired engine shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store     store.Store
	pgPool    *pgxpool.Pool
	redis     *goredis.Client
	l1        *cache.CachedIndexRepository
	graph     *graph.Graph
	variables *lifecycle.Service

	checkers []observability.Checker
	closers  []func()
}

// loadApp reads the configuration and builds the logger.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger.New(&cfg.App)}, nil
}

// open connects the record store and the index backend, then loads the
// variable graph.
func (a *app) open(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}

	if a.cfg.RedisRequired() {
		client, err := cache.NewRedisClient(ctx, &a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		a.checkers = append(a.checkers, cache.NewHealthChecker(client))
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	indices, err := a.indexRepository()
	if err != nil {
		return err
	}

	loc, err := a.cfg.Engine.Location()
	if err != nil {
		return err
	}

	a.graph = graph.New(logger.WithComponent(a.logger, "graph"), a.store, indices, graph.Options{Location: loc})
	if err := a.graph.Load(ctx, a.store); err != nil {
		return fmt.Errorf("failed to load variable graph: %w", err)
	}
	a.variables = lifecycle.NewService(logger.WithComponent(a.logger, "lifecycle"), a.store, a.graph)
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, &a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.pgPool = pool
		a.store = store.NewPostgresStore(pool)
		a.checkers = append(a.checkers, database.NewHealthChecker(pool))
		a.closers = append(a.closers, pool.Close)

	case config.DriverSQLite:
		s, err := store.OpenSQLite(a.cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.store = s
		a.checkers = append(a.checkers, database.NewSQLChecker("sqlite", s.DB()))
		a.closers = append(a.closers, func() { _ = s.Close() })

	default:
		a.logger.Warn("using the in-memory store, data is lost on exit")
		a.store = store.NewMemoryStore()
	}

	a.logger.Info("record store ready", slog.String("driver", a.cfg.Database.Driver))
	return nil
}

// indexRepository picks the index backend and wraps it with the L1 cache
// when enabled.
func (a *app) indexRepository() (store.IndexRepository, error) {
	var indices store.IndexRepository = a.store
	if a.cfg.Cache.Backend == config.CacheBackendRedis {
		indices = cache.NewRedisIndexStore(a.redis, a.cfg.Redis.KeyPrefix)
	}

	if !a.cfg.Cache.L1Enabled {
		return indices, nil
	}

	l1, err := cache.NewCachedIndexRepository(indices, a.cfg.Cache.L1Capacity, a.cfg.Cache.L1TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build L1 index cache: %w", err)
	}
	a.l1 = l1
	a.closers = append(a.closers, l1.Close)
	return l1, nil
}

// runMonitors samples pool and cache statistics until ctx is cancelled.
func (a *app) runMonitors(ctx context.Context) {
	if a.pgPool != nil {
		go database.RunPoolMonitor(ctx, a.pgPool, poolMonitorInterval)
	}
	if a.redis != nil {
		go cache.RunPoolMonitor(ctx, a.redis, poolMonitorInterval)
	}
	if a.l1 != nil {
		go a.l1.RunMetricsCollector(ctx, a.cfg.Cache.MetricsInterval)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
