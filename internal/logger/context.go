package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext stores logger in ctx. Middleware and interceptors use it to
// hand a request-scoped logger to handlers.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// With returns a context whose logger carries args in addition to the
// attributes already attached to the logger in ctx.
//
//	ctx = logger.With(ctx, slog.String("variable_id", id))
func With(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// FromContext returns the logger stored in ctx, or slog.Default when there
// is none. It never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
