// Package tracing provides a lightweight span-based tracing system that
// propagates trace context through Go contexts. Spans form parent–child trees
// and are logged as structured records via slog when the root ends.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	root      bool
	sampled   bool
	mu        sync.Mutex
}

// Tracer decides which root spans are recorded and where they are logged.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
}

// NewTracer returns a tracer that records a sampleRate fraction of traces.
// A disabled tracer still hands out spans so callers need no nil checks.
func NewTracer(enabled bool, sampleRate float64, logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{enabled: enabled, sampleRate: sampleRate, logger: logger}
}

// Start opens a span named name. If ctx already carries a span the new one
// becomes its child; otherwise a root span is created with traceID, or a
// fresh UUID when traceID is empty.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if parent := SpanFromContext(ctx); parent != nil {
		return StartChildSpan(ctx, name)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := StartSpan(ctx, name, traceID)
	span.sampled = t != nil && t.enabled && (t.sampleRate >= 1 || rand.Float64() < t.sampleRate)
	return ctx, span
}

// Finish ends span and, for sampled roots, logs the whole tree.
func (t *Tracer) Finish(span *Span) {
	span.End()
	if span.root && span.sampled && t != nil {
		span.logTo(t.logger, 0)
	}
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
		root:      true,
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child span linked to the parent in ctx.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
	}

	if parent != nil {
		child.TraceID = parent.TraceID
		child.sampled = parent.sampled
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}

	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's end time and duration.
func (s *Span) End() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Sampled reports whether the trace this span belongs to will be logged.
func (s *Span) Sampled() bool {
	return s.sampled
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if span := SpanFromContext(ctx); span != nil {
		return span.TraceID
	}
	return ""
}

// Log writes the span tree to the default logger.
func (s *Span) Log() {
	s.logTo(slog.Default(), 0)
}

func (s *Span) logTo(l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	l.Info("span", attrs...)

	for _, child := range children {
		child.logTo(l, depth+1)
	}
}
