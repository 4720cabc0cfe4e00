// Package syncer implements the background worker that feeds record
// mutations committed elsewhere into the variable graph, so the incremental
// indices stay in step with the record store.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/validation"
)

const queueMonitorInterval = 10 * time.Second

// Notifier receives applied record events. *graph.Graph implements it.
type Notifier interface {
	OnRecordAction(ctx context.Context, rec record.Record, action record.Action) error
	DeleteIndices(ctx context.Context) error
}

// Publisher emits record events to a syncer source.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

var (
	_ Publisher = (*RedisQueue)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)

// Service consumes a Source one message at a time. Events are applied in
// the order the source delivers them.
type Service struct {
	logger   *slog.Logger
	config   config.SyncerConfig
	source   Source
	notifier Notifier
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg config.SyncerConfig, source Source, notifier Notifier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertPresent(source, "syncer source")
	validation.AssertPresent(notifier, "syncer notifier")

	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Service{
		logger:   logger,
		config:   cfg,
		source:   source,
		notifier: notifier,
	}
}

// Run consumes events until ctx is cancelled. It closes the source on exit.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service",
		slog.String("source", s.config.Source),
		slog.Int("max_retries", s.config.MaxRetries),
	)
	defer func() {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("failed to close syncer source", slog.String("error", err.Error()))
		}
	}()

	if _, ok := s.source.(depthReporter); ok {
		go func() { _ = s.RunQueueMonitor(ctx, queueMonitorInterval) }()
	}

	fetchFailures := 0
	for {
		if ctx.Err() != nil {
			s.logger.Info("syncer service stopping...")
			return nil
		}

		msg, err := s.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("failed to fetch record event", slog.String("error", err.Error()))
			fetchFailures++
			s.sleep(ctx, s.backoff(min(fetchFailures-1, 5)))
			continue
		}
		fetchFailures = 0
		if msg == nil {
			continue
		}

		s.process(ctx, msg)

		if err := s.source.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to commit record event", slog.String("error", err.Error()))
		}
	}
}

// RunQueueMonitor samples the source backlog into the queue depth gauge
// every interval until ctx is cancelled.
func (s *Service) RunQueueMonitor(ctx context.Context, interval time.Duration) error {
	reporter, ok := s.source.(depthReporter)
	if !ok {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sample := func() {
		depth, err := reporter.Depth(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("failed to sample queue depth", slog.String("error", err.Error()))
			}
			return
		}
		observability.RedisQueueDepth.Set(float64(depth))
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample()
		}
	}
}

// process applies one message. Failures never stop the worker: an event the
// graph cannot apply after all retries drops every index, so the next
// evaluation recomputes from the record store.
func (s *Service) process(ctx context.Context, msg *Message) {
	ev, err := DecodeEvent(msg.Raw)
	if err == nil {
		err = s.withRetry(ctx, func() error { return s.apply(ctx, ev) })
	}

	switch {
	case err == nil:
		observability.SyncerJobsTotal.WithLabelValues("success").Inc()
		if ev.PublishedAt > 0 {
			observability.SyncerJobDuration.Observe(time.Since(time.UnixMilli(ev.PublishedAt)).Seconds())
		}
		s.logger.Debug("record event applied", slog.String("action", ev.Action))

	case errors.Is(err, ErrInvalidEvent):
		observability.SyncerJobsTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("dropping invalid record event",
			slog.String("payload", string(msg.Raw)),
			slog.String("error", err.Error()),
		)

	case ctx.Err() != nil:
		// shutting down mid-retry; kafka redelivers the uncommitted offset

	default:
		observability.SyncerJobsTotal.WithLabelValues("fail").Inc()
		s.logger.Error("failed to apply record event",
			slog.String("action", ev.Action),
			slog.String("error", err.Error()),
		)
		if err := s.notifier.DeleteIndices(ctx); err != nil {
			s.logger.Error("failed to drop indices after event failure", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) apply(ctx context.Context, ev Event) error {
	if ev.Resync() {
		return s.notifier.DeleteIndices(ctx)
	}

	rec, action, err := ev.Record()
	if err != nil {
		return err
	}
	return s.notifier.OnRecordAction(ctx, rec, action)
}

func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || errors.Is(err, ErrInvalidEvent) || attempt >= s.config.MaxRetries {
			return err
		}

		delay := s.backoff(attempt)
		s.logger.Warn("retrying record event",
			slog.Int("attempt", attempt+1),
			slog.String("delay", delay.String()),
			slog.String("error", err.Error()),
		)
		if !s.sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// backoff doubles the base delay per attempt.
func (s *Service) backoff(attempt int) time.Duration {
	return s.config.BaseRetryDelay << attempt
}

func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
