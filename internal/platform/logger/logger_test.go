package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests touching the slog default are not parallel.

func TestSetup_Levels(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{level: "debug", debugSeen: true, infoSeen: true},
		{level: "INFO", infoSeen: true},
		{level: "", infoSeen: true},
		{level: "warn"},
		{level: "error"},
	}

	for _, tc := range tests {
		t.Run("level_"+tc.level, func(t *testing.T) {
			buf := &TestLogBuffer{}
			l, err := setup(buf, tc.level, "json")
			require.NoError(t, err)

			l.Debug("debug message")
			l.Info("info message")

			assert.Equal(t, tc.debugSeen, strings.Contains(buf.String(), "debug message"))
			assert.Equal(t, tc.infoSeen, strings.Contains(buf.String(), "info message"))
			assert.Same(t, l, slog.Default())
		})
	}
}

func TestSetup_Formats(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	buf := &TestLogBuffer{}
	l, err := setup(buf, "info", "json")
	require.NoError(t, err)
	l.Info("hello", "sn", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "abc", entry["sn"])

	text := &TestLogBuffer{}
	l, err = setup(text, "info", "text")
	require.NoError(t, err)
	l.Info("hello", "sn", "abc")
	assert.Contains(t, text.String(), "sn=abc")

	_, err = setup(&TestLogBuffer{}, "info", "xml")
	assert.Error(t, err)

	_, err = setup(&TestLogBuffer{}, "verbose", "json")
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	l, buf := NewTestLogger()
	fallback, _ := NewTestLogger()

	assert.Nil(t, FromContext(context.Background()))
	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContextOrDefault(context.Background(), nil))

	ctx := WithContext(context.Background(), l.With("trace_id", "t-1"))
	FromContextOrDefault(ctx, fallback).Info("scoped")

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "t-1", entries[0]["trace_id"])
}
