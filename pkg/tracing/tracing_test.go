package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNestsChildren(t *testing.T) {
	tracer := NewTracer(true, 1, nil)
	ctx, root := tracer.Start(context.Background(), "facet", "trace-1")
	_, child := tracer.Start(ctx, "count", "ignored")

	assert.Equal(t, "trace-1", child.TraceID)
	assert.Equal(t, "trace-1", TraceID(ctx))
	require.Len(t, root.Children, 1)
	assert.Same(t, child, root.Children[0])
	assert.True(t, child.Sampled())
}

func TestFinishLogsSampledRoots(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	tracer := NewTracer(true, 1, l)
	ctx, root := tracer.Start(context.Background(), "facet", "")
	_, child := StartChildSpan(ctx, "merge")
	child.SetAttr("segments", 3)
	child.End()
	tracer.Finish(root)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "segments=3")
	assert.NotEmpty(t, root.TraceID)

	buf.Reset()
	off := NewTracer(false, 1, l)
	_, span := off.Start(context.Background(), "facet", "")
	off.Finish(span)
	assert.Empty(t, buf.String())
	assert.False(t, span.Sampled())
}

func TestSpanFromEmptyContext(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
	assert.Empty(t, TraceID(context.Background()))
}
