package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "Should parse lowercase debug", input: "debug", want: slog.LevelDebug},
		{name: "Should parse uppercase WARN", input: "WARN", want: slog.LevelWarn},
		{name: "Should parse error", input: "error", want: slog.LevelError},
		{name: "Should default to info on empty input", input: "", want: slog.LevelInfo},
		{name: "Should default to info on unknown level", input: "super-critical", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	cfg := &config.AppConfig{
		Name:        "tally-test",
		Version:     "v0.0.1",
		Environment: config.EnvironmentProduction,
		LogLevel:    "info",
		LogFormat:   "json",
	}

	t.Run("Should emit JSON with identity attributes", func(t *testing.T) {
		var buf bytes.Buffer
		log := WithComponent(NewWithWriter(cfg, &buf), "graph")

		log.Info("hello", slog.Int("answer", 42))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "tally-test", line["service"])
		assert.Equal(t, "v0.0.1", line["version"])
		assert.Equal(t, "production", line["env"])
		assert.Equal(t, "graph", line["component"])
		assert.Equal(t, float64(42), line["answer"])
		assert.NotContains(t, line, "source", "production logs must not carry source locations")
	})

	t.Run("Should drop lines below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(cfg, &buf)

		log.Debug("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("Should use the text handler when requested", func(t *testing.T) {
		var buf bytes.Buffer
		textCfg := *cfg
		textCfg.LogFormat = "text"

		NewWithWriter(&textCfg, &buf).Info("plain")
		assert.True(t, strings.Contains(buf.String(), "msg=plain"), buf.String())
	})

	t.Run("Should redact secret attributes", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(cfg, &buf).Info("connecting",
			slog.String("db_password", "hunter2"),
			slog.String("Authorization", "Bearer abc"),
			slog.String("host", "db.internal"),
		)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, Redacted, line["db_password"])
		assert.Equal(t, Redacted, line["Authorization"])
		assert.Equal(t, "db.internal", line["host"])
		assert.NotContains(t, buf.String(), "hunter2")
	})

	t.Run("Should panic on nil config", func(t *testing.T) {
		assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
	})
}
