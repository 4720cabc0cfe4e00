package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig is empty: the embedded sqlite driver and the store
// index backend need no external services.
func minimalRequiredConfig() map[string]string {
	return map[string]string{}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a complete valid production configuration
// using Postgres, the Redis index backend and the Redis record queue.
func validProductionConfig() map[string]string {
	return map[string]string{
		// App
		"TALLY_APP_ENV": "production",

		// Database
		"TALLY_DB_DRIVER":   "postgres",
		"TALLY_DB_HOST":     "prod-db.example.com",
		"TALLY_DB_PORT":     "5432",
		"TALLY_DB_NAME":     "tally_prod",
		"TALLY_DB_USER":     "prod_user",
		"TALLY_DB_PASSWORD": "SuperSecure123!",
		"TALLY_DB_SSL_MODE": "require",

		// Redis
		"TALLY_REDIS_HOST":        "prod-redis.example.com",
		"TALLY_REDIS_PORT":        "6379",
		"TALLY_REDIS_PASSWORD":    "RedisSecure123!",
		"TALLY_REDIS_TLS_ENABLED": "true",
		"TALLY_CACHE_BACKEND":     "redis",
		"TALLY_SYNCER_ENABLED":    "true",

		// Control Plane
		"TALLY_SERVER_CONTROL_API_KEY_HASH":  "5dec7e1c36e8ec7f526cfa8ff6dc788daad76f6dd34467662eb47990dca6b55d",
		"TALLY_SERVER_CONTROL_TLS_ENABLED":   "true",
		"TALLY_SERVER_CONTROL_TLS_CERT_FILE": "/certs/control-cert.pem",
		"TALLY_SERVER_CONTROL_TLS_KEY_FILE":  "/certs/control-key.pem",
	}
}

// runLoadCases sets each case's variables and asserts Load's outcome.
func runLoadCases(t *testing.T, tests []loadCase) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

type loadCase struct {
	name    string
	envVars map[string]string
	want    func(t *testing.T, cfg *Config)
	wantErr bool
}

func TestLoad(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "tally", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.Control.Port)
				assert.Equal(t, "50051", cfg.Server.Data.Port)
				assert.Equal(t, DriverSQLite, cfg.Database.Driver)
				assert.Equal(t, CacheBackendStore, cfg.Cache.Backend)
				assert.False(t, cfg.Syncer.Enabled)
				assert.False(t, cfg.RedisRequired())
			},
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"TALLY_APP_NAME":             "test-app",
				"TALLY_APP_VERSION":          "1.0.0",
				"TALLY_APP_ENV":              "staging",
				"TALLY_APP_LOG_LEVEL":        "debug",
				"TALLY_APP_LOG_FORMAT":       "json",
				"TALLY_APP_SHUTDOWN_TIMEOUT": "60s",
				"TALLY_SERVER_CONTROL_PORT":  "9091",
				"TALLY_SERVER_DATA_PORT":     "50052",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "0.0.0.0:9091", cfg.Server.Control.Address())
				assert.Equal(t, "0.0.0.0:50052", cfg.Server.Data.Address())
			},
		},
		{
			name:    "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{"TALLY_APP_ENV": "invalid"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{"TALLY_APP_LOG_LEVEL": "trace"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{"TALLY_APP_LOG_FORMAT": "xml"}),
			wantErr: true,
		},
		{
			name:    "Should pass validation with a complete production configuration",
			envVars: validProductionConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, EnvironmentProduction, cfg.App.Environment)
				assert.True(t, cfg.RedisRequired())
				assert.Equal(t, "tally", cfg.Redis.KeyPrefix)
			},
		},
	})
}

func TestControlPlaneConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name:    "Should fail validation when TLS enabled without certificates",
			envVars: mergeEnvVars(map[string]string{"TALLY_SERVER_CONTROL_TLS_ENABLED": "true"}),
			wantErr: true,
		},
		{
			name: "Should fail validation when control plane API key missing in production",
			envVars: func() map[string]string {
				cfg := validProductionConfig()
				delete(cfg, "TALLY_SERVER_CONTROL_API_KEY_HASH")
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "Should fail validation when control plane TLS disabled in production",
			envVars: func() map[string]string {
				cfg := validProductionConfig()
				cfg["TALLY_SERVER_CONTROL_TLS_ENABLED"] = "false"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name:    "Should fail validation with a malformed API key hash in any environment",
			envVars: mergeEnvVars(map[string]string{"TALLY_SERVER_CONTROL_API_KEY_HASH": "aaaaaa"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation with host containing whitespace",
			envVars: mergeEnvVars(map[string]string{"TALLY_SERVER_CONTROL_HOST": " 0.0.0.0"}),
			wantErr: true,
		},
		{
			name:    "Should skip data plane validation when disabled",
			envVars: mergeEnvVars(map[string]string{"TALLY_SERVER_DATA_ENABLED": "false", "TALLY_SERVER_DATA_PORT": "0"}),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Server.Data.Enabled)
			},
		},
		{
			name:    "Should fail validation with data plane port 0",
			envVars: mergeEnvVars(map[string]string{"TALLY_SERVER_DATA_PORT": "0"}),
			wantErr: true,
		},
		{
			name:    "Should verify control plane defaults",
			envVars: mergeEnvVars(map[string]string{}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10*time.Second, cfg.Server.Control.ReadTimeout)
				assert.Equal(t, 30*time.Second, cfg.Server.Control.WriteTimeout)
				assert.Equal(t, 524288, cfg.Server.Control.MaxHeaderBytes)
				assert.Equal(t, int64(1048576), cfg.Server.Control.MaxBodyBytes)
			},
		},
	})
}

func TestObservabilityConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should load custom observability settings",
			envVars: mergeEnvVars(map[string]string{
				"TALLY_OBSERVABILITY_PORT":    "9191",
				"TALLY_OBSERVABILITY_TIMEOUT": "2s",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9191", cfg.Observability.Port)
				assert.Equal(t, 2*time.Second, cfg.Observability.Timeout)
				assert.Equal(t, "/metrics", cfg.Observability.MetricsPath)
			},
		},
		{
			name:    "Should fail validation on port too high",
			envVars: mergeEnvVars(map[string]string{"TALLY_OBSERVABILITY_PORT": "65536"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on timeout too short",
			envVars: mergeEnvVars(map[string]string{"TALLY_OBSERVABILITY_TIMEOUT": "999ms"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on relative probe path",
			envVars: mergeEnvVars(map[string]string{"TALLY_OBSERVABILITY_LIVENESS_PATH": "healthz"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation when two probes share a path",
			envVars: mergeEnvVars(map[string]string{"TALLY_OBSERVABILITY_READINESS_PATH": "/healthz"}),
			wantErr: true,
		},
		{
			name: "Should skip observability validation when disabled",
			envVars: mergeEnvVars(map[string]string{
				"TALLY_OBSERVABILITY_ENABLED":      "false",
				"TALLY_OBSERVABILITY_METRICS_PATH": "metrics",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Observability.Enabled)
			},
		},
	})
}
