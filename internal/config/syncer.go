package config

import (
	"fmt"
	"time"
)

// Record event sources.
const (
	SyncerSourceRedis = "redis"
	SyncerSourceKafka = "kafka"
)

// SyncerConfig contains configuration for the record event consumer that
// feeds committed record mutations into the graph.
type SyncerConfig struct {
	Enabled        bool          `envconfig:"ENABLED" default:"false"`
	Source         string        `envconfig:"SOURCE" default:"redis" validate:"oneof=redis kafka"`
	QueueKey       string        `envconfig:"QUEUE_KEY" default:"records:queue"`
	PopTimeout     time.Duration `envconfig:"POP_TIMEOUT" default:"5s" validate:"gt=0"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"1s"`

	Kafka KafkaConfig `envconfig:"KAFKA"`
}

// KafkaConfig configures the Kafka record event source. The topic must be
// produced with the record id as key to keep per-record ordering.
type KafkaConfig struct {
	Brokers  []string      `envconfig:"BROKERS" default:"localhost:9092"`
	Topic    string        `envconfig:"TOPIC" default:"tally.records"`
	GroupID  string        `envconfig:"GROUP_ID" default:"tally-syncer"`
	MinBytes int           `envconfig:"MIN_BYTES" default:"1" validate:"min=1"`
	MaxBytes int           `envconfig:"MAX_BYTES" default:"10485760" validate:"min=1"` // 10MB
	MaxWait  time.Duration `envconfig:"MAX_WAIT" default:"1s"`
}

// Validate checks the settings of the selected source.
func (c *SyncerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Source {
	case SyncerSourceRedis:
		return validateNoWhitespace(c.QueueKey, "syncer queue key")
	case SyncerSourceKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers cannot be empty")
		}
		for _, b := range c.Kafka.Brokers {
			if err := validateNoWhitespace(b, "kafka broker"); err != nil {
				return err
			}
		}
		if err := validateNoWhitespace(c.Kafka.Topic, "kafka topic"); err != nil {
			return err
		}
		if c.Kafka.MinBytes > c.Kafka.MaxBytes {
			return fmt.Errorf("kafka min_bytes (%d) cannot be greater than max_bytes (%d)", c.Kafka.MinBytes, c.Kafka.MaxBytes)
		}
		return validateNoWhitespace(c.Kafka.GroupID, "kafka group id")
	}
	return nil
}
