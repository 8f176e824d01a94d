package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cryptoDataPipeline/internal/ports"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warning ", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStdLogger_FiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerWithWriter(&buf, LevelInfo)

	l.Debug(context.Background(), "hidden")
	l.Info(context.Background(), "klines loaded", map[string]interface{}{"symbol": "BTCUSDT", "inserted": 3})
	l.Error(context.Background(), errors.New("boom"), "load failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] klines loaded | inserted=3 symbol=BTCUSDT")
	assert.Contains(t, out, "[ERROR] load failed | error: boom")
}

func TestStdLogger_ContextFieldsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerWithWriter(&buf, LevelDebug)

	ctx := ports.WithLogFields(context.Background(), map[string]interface{}{"pair": "BTCUSDT-1h", "attempt": 1})
	ctx = ports.WithLogFields(ctx, map[string]interface{}{"attempt": 2})
	l.Warn(ctx, "retrying", map[string]interface{}{"reason": "rate limited"}, map[string]interface{}{"delay": "10s"})

	assert.Contains(t, buf.String(), `[WARN] retrying | attempt=2 delay=10s pair=BTCUSDT-1h reason="rate limited"`)
}

func TestAdapters_ShareFieldOrder(t *testing.T) {
	ctx := ports.WithLogFields(context.Background(), map[string]interface{}{"pair": "ETHUSDT-1d"})
	fields := map[string]interface{}{"inserted": 5, "fetched": 7}

	core, logs := observer.New(zapcore.DebugLevel)
	NewZapLoggerFrom(zap.New(core)).Info(ctx, "pair ingested", fields)

	var buf bytes.Buffer
	NewStdLoggerWithWriter(&buf, LevelInfo).Info(ctx, "pair ingested", fields)

	entries := logs.All()
	require.Len(t, entries, 1)
	keys := make([]string, len(entries[0].Context))
	for i, f := range entries[0].Context {
		keys[i] = f.Key
	}
	assert.Equal(t, []string{"fetched", "inserted", "pair"}, keys)
	assert.Contains(t, buf.String(), "| fetched=7 inserted=5 pair=ETHUSDT-1d")
}

func TestZapLogger_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))

	l.Info(context.Background(), "pair ingested", map[string]interface{}{"pair": "ETHUSDT-1h"})
	l.Error(context.Background(), errors.New("timeout"), "fetch failed")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "pair ingested", entries[0].Message)
		assert.Equal(t, "ETHUSDT-1h", entries[0].ContextMap()["pair"])
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "timeout", entries[1].ContextMap()["error"])
	}
}

func TestNew_SelectsFormat(t *testing.T) {
	l, flush, err := New(FormatText, LevelInfo)
	require.NoError(t, err)
	assert.IsType(t, &StdLogger{}, l)
	flush()

	l, flush, err = New(FormatJSON, LevelDebug)
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, l)
	flush()

	_, _, err = New("xml", LevelInfo)
	assert.Error(t, err)
}
