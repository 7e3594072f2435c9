package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level string) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewStructuredLogger(LoggerConfig{
		Level:       level,
		Format:      "json",
		ServiceName: "dashboard-test",
		Output:      buf,
	}), buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line, err := buf.ReadBytes('\n')
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &out))
	return out
}

func TestStructuredLogger_FieldsAndCorrelationID(t *testing.T) {
	log, buf := newBufferLogger("debug")
	ctx := WithCorrelationID(context.Background(), "cid-123")

	log.WithFields(map[string]interface{}{"component": "cache"}).Info(ctx, "cache activated", map[string]interface{}{"key": "k"})

	entry := decodeLine(t, buf)
	assert.Equal(t, "cache activated", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "dashboard-test", entry["service"])
	assert.Equal(t, "cache", entry["component"])
	assert.Equal(t, "k", entry["key"])
	assert.Equal(t, "cid-123", entry["correlation_id"])
}

func TestStructuredLogger_Error(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.Error(context.Background(), "fetch failed", errors.New("boom"), nil)

	entry := decodeLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	log, buf := newBufferLogger("warn")

	log.Info(context.Background(), "hidden", nil)
	log.Debug(context.Background(), "hidden", nil)
	assert.Zero(t, buf.Len())

	LogPerformance(context.Background(), log, "fetch", time.Second, nil)
	assert.Zero(t, buf.Len(), "performance logs are debug level")

	log.Warn(context.Background(), "shown", nil)
	assert.NotZero(t, buf.Len())
}

func TestCorrelationID_Missing(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
}
