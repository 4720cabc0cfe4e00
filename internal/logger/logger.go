// Package logger builds the slog logger shared by every tally command and
// carries request-scoped loggers through context.Context.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rafaeljc/tally/internal/config"
	"github.com/rafaeljc/tally/internal/validation"
)

// Redacted replaces the value of attributes that look like secrets.
const Redacted = "[REDACTED]"

var secretKeys = []string{"password", "api_key", "authorization", "token", "secret"}

// New logs to stderr, so evaluate and reindex output on stdout stays
// parseable.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter picks the JSON or text handler from cfg.LogFormat. Source
// locations are only recorded outside production.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	validation.AssertNotNil(cfg, "logger config")

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.LogLevel),
		AddSource:   cfg.Environment != config.EnvironmentProduction,
		ReplaceAttr: redact,
	}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// WithComponent tags every line with the emitting subsystem (graph, syncer,
// control_plane, ...).
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With(slog.String("component", component))
}

// ParseLevel is case-insensitive and falls back to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, Redacted)
		}
	}
	return a
}
