package config

import (
	"fmt"
	"time"
)

// Index store backends.
const (
	// CacheBackendStore keeps indices in the configured database.
	CacheBackendStore = "store"
	// CacheBackendRedis keeps indices in Redis hashes shared by every replica.
	CacheBackendRedis = "redis"
)

// CacheConfig configures where variable indices live and the optional
// in-process L1 in front of them.
type CacheConfig struct {
	Backend string `envconfig:"BACKEND" default:"store" validate:"oneof=store redis"`

	L1Enabled  bool          `envconfig:"L1_ENABLED" default:"true"`
	L1Capacity int           `envconfig:"L1_CAPACITY" default:"10000" validate:"min=1"`
	L1TTL      time.Duration `envconfig:"L1_TTL" default:"5m"`

	// MetricsInterval controls how often L1 usage is sampled into gauges.
	MetricsInterval time.Duration `envconfig:"METRICS_INTERVAL" default:"15s"`
}

// Validate checks CacheConfig fields that struct tags cannot express.
func (c *CacheConfig) Validate() error {
	if c.L1Enabled && c.L1TTL <= 0 {
		return fmt.Errorf("cache L1 TTL must be positive, got %s", c.L1TTL)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("cache metrics interval must be positive, got %s", c.MetricsInterval)
	}
	return nil
}
