package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestBatchCollectorFlush(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 10, time.Hour)

	bc.TrackFacet(FacetEvent{Field: "color", Entries: 3})
	bc.TrackIndex(IndexEvent{Segment: "seg_000001", Docs: 100})
	assert.Equal(t, 2, bc.BufferLen())

	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	require.Len(t, pub.batches, 1)
	batch := pub.batches[0]
	assert.Equal(t, "color", batch[0].Key)
	assert.Equal(t, EventFacet, batch[0].Value.(FacetEvent).Type)
	assert.False(t, batch[0].Value.(FacetEvent).Timestamp.IsZero())
	assert.Equal(t, "seg_000001", batch[1].Key)
	assert.Equal(t, EventIndexFlush, batch[1].Value.(IndexEvent).Type)
}

func TestBatchCollectorRequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 2, time.Hour)
	bc.TrackFacet(FacetEvent{Field: "a"})
	bc.Flush(context.Background())
	assert.Equal(t, 1, bc.BufferLen())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 1, pub.published())
}

func TestBatchCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 1, time.Hour)
	for range 10 {
		bc.TrackFacet(FacetEvent{Field: "a"})
	}
	assert.Eventually(t, func() bool { return bc.BufferLen() <= 3 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, bc.BufferLen(), 3)
}

func TestBatchCollectorFinalFlushOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.TrackFacet(FacetEvent{Field: "color"})
	cancel()
	bc.Close()
	assert.Equal(t, 1, pub.published())
}

func TestNilCollectorIgnoresEvents(t *testing.T) {
	var bc *BatchCollector
	assert.NotPanics(t, func() { bc.TrackFacet(FacetEvent{Field: "color"}) })
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.RecordFacet(FacetEvent{Field: "color", Entries: 5, LatencyMs: 10, Refined: true})
	agg.RecordFacet(FacetEvent{Field: "color", Entries: 0, LatencyMs: 30, CacheHit: true})
	agg.RecordFacet(FacetEvent{Field: "size", Entries: 2, LatencyMs: 20, FailedShards: 1})
	agg.RecordIndex(IndexEvent{Segment: "s", Docs: 42})

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.RefinedRequests)
	assert.Equal(t, int64(1), stats.PartialRequests)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.EmptyResults)
	assert.Equal(t, int64(1), stats.SegmentsFlushed)
	assert.Equal(t, int64(42), stats.DocsIndexed)
	assert.InDelta(t, 20.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(20), stats.P50LatencyMs)
	assert.Equal(t, []FieldCount{{Field: "color", Count: 2}, {Field: "size", Count: 1}}, stats.TopFields)
	assert.Equal(t, []FieldCount{{Field: "color", Count: 1}}, stats.EmptyFields)
}

func TestHandleEventDecodesByType(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	facet, err := json.Marshal(FacetEvent{Type: EventFacet, Field: "color", Entries: 1})
	require.NoError(t, err)
	index, err := json.Marshal(IndexEvent{Type: EventIndexFlush, Segment: "s", Docs: 7})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handle(ctx, nil, facet))
	require.NoError(t, handle(ctx, nil, index))
	require.NoError(t, handle(ctx, nil, []byte("not json")))
	require.NoError(t, handle(ctx, nil, []byte(`{"type":"other"}`)))

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(7), stats.DocsIndexed)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.RecordFacet(FacetEvent{Field: "color", Entries: 1})

	rec := httptest.NewRecorder()
	NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRequests)
}

func TestLatestWithoutStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(NewAggregator(), nil).Latest(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}
