package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/validation"
)

// kafkaReader is the subset of *kafka.Reader the source uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes a topic through a consumer group. Offsets are
// committed only after an event was handled, so delivery is at least once.
// Ordering holds per partition; producers key messages by record id.
type KafkaSource struct {
	reader kafkaReader
	poll   time.Duration
}

var _ Source = (*KafkaSource)(nil)

// NewKafkaSource builds a consumer group reader from cfg.
func NewKafkaSource(cfg *config.KafkaConfig, poll time.Duration) *KafkaSource {
	validation.AssertNotNil(cfg, "kafka config")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
	})
	return newKafkaSource(reader, poll)
}

func newKafkaSource(reader kafkaReader, poll time.Duration) *KafkaSource {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &KafkaSource{reader: reader, poll: poll}
}

// Fetch implements Source.
func (s *KafkaSource) Fetch(ctx context.Context) (*Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.poll)
	defer cancel()

	msg, err := s.reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch kafka message: %w", err)
	}

	return &Message{
		Raw: msg.Value,
		commit: func(ctx context.Context) error {
			return s.reader.CommitMessages(ctx, msg)
		},
	}, nil
}

// Commit implements Source.
func (s *KafkaSource) Commit(ctx context.Context, msg *Message) error {
	if msg == nil || msg.commit == nil {
		return nil
	}
	if err := msg.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit kafka offset: %w", err)
	}
	return nil
}

// Close implements Source.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaPublisher produces record events keyed by record id, so every
// mutation of one record lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a synchronous writer for cfg.Topic.
func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	validation.AssertNotNil(cfg, "kafka config")

	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}
}

// Publish writes ev.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var key []byte
	switch {
	case ev.JournalEntry != nil:
		key = []byte(ev.JournalEntry.ID)
	case ev.TagEntry != nil:
		key = []byte(ev.TagEntry.ID)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
