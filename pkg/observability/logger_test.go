package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/buildload/pkg/observability"
)

func jsonLogger(mode observability.AppMode, env string) (*slog.Logger, *bytes.Buffer) {
	cfg := observability.DefaultConfig()
	cfg.Mode = mode
	cfg.Environment = env
	cfg.LogJSON = true
	cfg.LogLevel = slog.LevelDebug

	var buf bytes.Buffer

	return observability.NewLogger(&buf, cfg), &buf
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestNewLogger_InjectsSpanContext(t *testing.T) {
	t.Parallel()

	logger, buf := jsonLogger(observability.ModeCollect, "ci")

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.InfoContext(ctx, "series fetched")

	record := decodeRecord(t, buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "buildload", record["service"])
	assert.Equal(t, "ci", record["env"])
	assert.Equal(t, "collect", record["mode"])
}

func TestNewLogger_NoSpanContext(t *testing.T) {
	t.Parallel()

	logger, buf := jsonLogger(observability.ModeStatus, "")

	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, buf)
	assert.NotContains(t, record, "trace_id")
	assert.NotContains(t, record, "env")
	assert.Equal(t, "status", record["mode"])
}

func TestNewLogger_GroupKeepsServiceTopLevel(t *testing.T) {
	t.Parallel()

	logger, buf := jsonLogger(observability.ModeCollect, "")

	logger.WithGroup("fetch").With(slog.String("op", "get")).
		InfoContext(context.Background(), "batch done", slog.String("stage", "download"))

	record := decodeRecord(t, buf)
	assert.Equal(t, "buildload", record["service"])

	fetch, ok := record["fetch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "download", fetch["stage"])
	assert.Equal(t, "get", fetch["op"])
}

func TestNewLogger_Text(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeReport

	var text bytes.Buffer

	observability.NewLogger(&text, cfg).Info("hello", "builder", "x86_64-gnu")
	assert.Contains(t, text.String(), "msg=hello")
	assert.Contains(t, text.String(), "mode=report")
	assert.Contains(t, text.String(), "builder=x86_64-gnu")
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.LogLevel = slog.LevelWarn

	var buf bytes.Buffer

	logger := observability.NewLogger(&buf, cfg)
	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
