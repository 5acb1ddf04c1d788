package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l := logger.Setup(logger.Config{Level: "warn", Output: &buf})
	require.NotNil(t, l)
	assert.Same(t, l, slog.Default())

	l.Info("hidden")
	l.Warn("shown", "key", "value")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
	assert.Equal(t, "value", entries[0]["key"])
}

func TestSetupInvalidLevel(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	logger.Setup(logger.Config{Level: "loud", Output: &buf})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "loud", entries[0]["configured_level"])
}

func TestContextHelpers(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	def := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("round trip", func(t *testing.T) {
		ctx := logger.WithLogger(context.Background(), custom)
		assert.Same(t, custom, logger.FromContext(ctx))
		assert.Same(t, custom, logger.FromContextOrDefault(ctx, def))
	})

	t.Run("falls back to default", func(t *testing.T) {
		assert.Same(t, def, logger.FromContextOrDefault(context.Background(), def))
		//nolint:staticcheck // nil context is part of the contract
		assert.Same(t, def, logger.FromContextOrDefault(nil, def))
		assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
	})

	t.Run("nil logger panics", func(t *testing.T) {
		assert.Panics(t, func() {
			logger.WithLogger(context.Background(), nil)
		})
	})
}

func TestAdapters(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	goose := logger.GooseLogger{Logger: l}
	goose.Printf("OK   %s\n", "00001_init.sql")
	assert.NotPanics(t, func() { goose.Fatalf("boom %d", 1) })

	cron := logger.CronLogger{Logger: l}
	cron.Info("skip", "reason", "still running")
	cron.Error(errors.New("bad"), "panic in job")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "OK   00001_init.sql", entries[0]["msg"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "DEBUG", entries[2]["level"])
	assert.Equal(t, "still running", entries[2]["reason"])
	assert.Equal(t, "bad", entries[3]["error"])
}
