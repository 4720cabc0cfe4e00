package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the admin listener serving probes and
// prometheus metrics.
type ObservabilityConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"9090"`

	// Timeout bounds reads, writes and the readiness checks; idle
	// connections get three times as long.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Validate requires absolute, distinct paths.
func (o *ObservabilityConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	seen := make(map[string]bool, 3)
	for _, p := range []string{o.LivenessPath, o.ReadinessPath, o.MetricsPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("observability path %q must start with '/'", p)
		}
		if seen[p] {
			return fmt.Errorf("observability path %q is used twice", p)
		}
		seen[p] = true
	}
	return nil
}
