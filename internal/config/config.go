// Package config loads tally's settings from TALLY_* environment variables
// with envconfig and checks them with validator plus per-section rules.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvironmentProduction = "production"

	// envPrefix namespaces every variable, e.g. TALLY_DB_DRIVER.
	envPrefix = "TALLY"
)

// Config is the complete configuration of a tally process.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Engine        EngineConfig        `envconfig:"ENGINE"`
	Syncer        SyncerConfig        `envconfig:"SYNCER"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
}

// AppConfig identifies the process in logs and bounds its shutdown.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"tally"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load processes the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate runs the struct tags first, then each section's own rules in
// declaration order. The first failure wins.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	env := c.App.Environment
	checks := []func() error{
		func() error { return c.Database.Validate(env) },
		func() error {
			// Redis is only dialed by the components configured to use it.
			if !c.RedisRequired() {
				return nil
			}
			return c.Redis.Validate(env)
		},
		c.Cache.Validate,
		c.Engine.Validate,
		c.Syncer.Validate,
		func() error { return c.Server.Control.Validate(env) },
		c.Server.Data.Validate,
		c.Observability.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// RedisRequired reports whether any enabled component talks to Redis.
func (c *Config) RedisRequired() bool {
	return c.Cache.Backend == CacheBackendRedis ||
		(c.Syncer.Enabled && c.Syncer.Source == SyncerSourceRedis)
}

// LogConfig logs the effective settings. Credentials are never included.
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.Group("app",
			slog.String("name", c.App.Name),
			slog.String("version", c.App.Version),
			slog.String("environment", c.App.Environment),
			slog.String("log_level", c.App.LogLevel),
			slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		),
		slog.Group("server",
			slog.String("control_addr", c.Server.Control.Address()),
			slog.Bool("control_tls", c.Server.Control.TLSEnabled),
			slog.Bool("data_enabled", c.Server.Data.Enabled),
			slog.String("data_addr", c.Server.Data.Address()),
		),
		slog.Group("engine",
			slog.String("db_driver", c.Database.Driver),
			slog.String("index_backend", c.Cache.Backend),
			slog.Bool("l1_enabled", c.Cache.L1Enabled),
			slog.String("timezone", c.Engine.Timezone),
		),
		slog.Group("syncer",
			slog.Bool("enabled", c.Syncer.Enabled),
			slog.String("source", c.Syncer.Source),
		),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
	)
}
