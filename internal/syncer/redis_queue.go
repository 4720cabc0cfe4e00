package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tally/internal/validation"
)

// Message is one fetched event. Raw keeps the payload for logging when the
// event cannot be decoded.
type Message struct {
	Raw []byte

	commit func(ctx context.Context) error
}

// Source delivers record events in commit order.
type Source interface {
	// Fetch blocks until a message is available. It returns nil, nil when
	// nothing arrived within the source's poll window.
	Fetch(ctx context.Context) (*Message, error)

	// Commit acknowledges a processed message.
	Commit(ctx context.Context, msg *Message) error

	Close() error
}

// depthReporter is implemented by sources that can report their backlog.
type depthReporter interface {
	Depth(ctx context.Context) (int64, error)
}

// RedisQueue is a FIFO list: producers LPUSH, the single consumer BRPOPs.
// A popped message is removed at once, so delivery is at most once.
type RedisQueue struct {
	client     redis.UniversalClient
	key        string
	popTimeout time.Duration
}

var (
	_ Source        = (*RedisQueue)(nil)
	_ depthReporter = (*RedisQueue)(nil)
)

// NewRedisQueue creates a queue on key. popTimeout bounds each blocking pop.
func NewRedisQueue(client redis.UniversalClient, key string, popTimeout time.Duration) *RedisQueue {
	validation.AssertPresent(client, "redis client")
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, key: key, popTimeout: popTimeout}
}

// Publish enqueues ev.
func (q *RedisQueue) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Fetch implements Source.
func (q *RedisQueue) Fetch(ctx context.Context) (*Message, error) {
	// BRPOP returns [key, value]
	res, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop event: %w", err)
	}
	return &Message{Raw: []byte(res[1])}, nil
}

// Commit implements Source. Messages are already gone from the list.
func (q *RedisQueue) Commit(context.Context, *Message) error { return nil }

// Depth returns the number of queued events.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}

// Close implements Source. The client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
