package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("dropped")
	WithField(l, "color").Warn("kept", "entries", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "color", line["field"])
	assert.EqualValues(t, 3, line["entries"])
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("facet computed")
	assert.Contains(t, buf.String(), "request_id=req-42")

	buf.Reset()
	FromContext(context.Background()).Info("no id")
	assert.NotContains(t, buf.String(), "request_id")
}
