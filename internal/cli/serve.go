package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/controlapi"
	"github.com/rafaeljc/tally/internal/dataapi"
	"github.com/rafaeljc/tally/internal/logger"
	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Control Plane, the Data Plane and the record syncer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	a.cfg.LogConfig(a.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 1. Engine and observability
	// -------------------------------------------------------------------------
	defer a.close()
	if err := a.open(ctx); err != nil {
		return err
	}

	graphGate := observability.NewGate("graph")
	graphGate.Open()

	var obsServer *observability.Server
	if a.cfg.Observability.Enabled {
		obsServer = observability.NewServer(logger.WithComponent(a.logger, "observability"), &a.cfg.Observability,
			append(a.checkers, graphGate)...)
		if err := obsServer.Start(); err != nil {
			return err
		}
	}

	monitorCtx, stopMonitors := context.WithCancel(ctx)
	defer stopMonitors()
	a.runMonitors(monitorCtx)

	errChan := make(chan error, 3)

	// -------------------------------------------------------------------------
	// 2. Control Plane (REST)
	// -------------------------------------------------------------------------
	control := controlapi.NewAPI(logger.WithComponent(a.logger, "control_plane"), a.graph, a.variables, a.store, controlapi.Config{
		APIKeyHash:   a.cfg.Server.Control.APIKeyHash,
		SkipAuth:     a.cfg.Server.Control.APIKeyHash == "",
		MaxBodyBytes: a.cfg.Server.Control.MaxBodyBytes,
		WeekStart:    a.cfg.Engine.DefaultWeekStart(),
	})
	if a.cfg.Server.Control.APIKeyHash == "" {
		a.logger.Warn("control plane authentication disabled, no API key hash configured")
	}

	httpServer := newHTTPServer(&a.cfg.Server.Control, control.Router)
	go func() {
		cc := a.cfg.Server.Control
		a.logger.Info("control plane listening", slog.String("addr", cc.Address()), slog.Bool("tls", cc.TLSEnabled))

		var err error
		if cc.TLSEnabled {
			err = httpServer.ListenAndServeTLS(cc.TLSCert, cc.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("control plane failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 3. Data Plane (gRPC)
	// -------------------------------------------------------------------------
	var grpcServer *grpc.Server
	var healthServer *health.Server
	if a.cfg.Server.Data.Enabled {
		// Create the TCP listener first (Fail Fast)
		listener, err := net.Listen("tcp", a.cfg.Server.Data.Address())
		if err != nil {
			return fmt.Errorf("failed to bind data plane %s: %w", a.cfg.Server.Data.Address(), err)
		}

		dataLogger := logger.WithComponent(a.logger, "data_plane")
		grpcServer = dataapi.NewServer(&a.cfg.Server.Data, dataLogger)
		dataapi.NewAPI(dataLogger, a.graph).Register(grpcServer)

		healthServer = health.NewServer()
		healthServer.SetServingStatus(dataapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		go func() {
			a.logger.Info("data plane listening", slog.String("addr", a.cfg.Server.Data.Address()))
			if err := grpcServer.Serve(listener); err != nil {
				errChan <- fmt.Errorf("data plane failed: %w", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// 4. Syncer
	// -------------------------------------------------------------------------
	syncerDone := make(chan struct{})
	if a.cfg.Syncer.Enabled {
		source := newSyncerSource(a)
		svc := syncer.New(logger.WithComponent(a.logger, "syncer"), a.cfg.Syncer, source, a.graph)
		go func() {
			defer close(syncerDone)
			if err := svc.Run(ctx); err != nil {
				errChan <- fmt.Errorf("syncer failed: %w", err)
			}
		}()
	} else {
		close(syncerDone)
	}

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	var runErr error
	select {
	case runErr = <-errChan:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
		stop()
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	graphGate.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("control plane shutdown failed", slog.String("error", err.Error()))
	}
	if grpcServer != nil {
		healthServer.Shutdown()
		gracefulStop(shutdownCtx, grpcServer)
	}

	select {
	case <-syncerDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("syncer did not stop before the shutdown timeout")
	}

	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("observability shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("service exited")
	return runErr
}

func newHTTPServer(cfg *config.ControlPlaneConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// gracefulStop waits for pending RPCs until ctx expires, then forces the
// server down.
func gracefulStop(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}

func newSyncerSource(a *app) syncer.Source {
	if a.cfg.Syncer.Source == config.SyncerSourceKafka {
		return syncer.NewKafkaSource(&a.cfg.Syncer.Kafka, a.cfg.Syncer.PopTimeout)
	}
	return syncer.NewRedisQueue(a.redis, a.cfg.Syncer.QueueKey, a.cfg.Syncer.PopTimeout)
}

func newSyncerPublisher(a *app) (syncer.Publisher, func()) {
	if a.cfg.Syncer.Source == config.SyncerSourceKafka {
		p := syncer.NewKafkaPublisher(&a.cfg.Syncer.Kafka)
		return p, func() { _ = p.Close() }
	}
	return syncer.NewRedisQueue(a.redis, a.cfg.Syncer.QueueKey, a.cfg.Syncer.PopTimeout), func() {}
}
