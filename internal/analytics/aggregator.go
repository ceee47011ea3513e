package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
)

// AggregatedStats is the dashboard view over every event seen so far.
type AggregatedStats struct {
	TotalRequests     int64        `json:"total_requests"`
	RefinedRequests   int64        `json:"refined_requests"`
	PartialRequests   int64        `json:"partial_requests"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	EmptyResults      int64        `json:"empty_results"`
	SegmentsFlushed   int64        `json:"segments_flushed"`
	DocsIndexed       int64        `json:"docs_indexed"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopFields         []FieldCount `json:"top_fields"`
	EmptyFields       []FieldCount `json:"empty_fields"`
	RequestsPerMinute float64      `json:"requests_per_minute"`
}

type FieldCount struct {
	Field string `json:"field"`
	Count int64  `json:"count"`
}

// maxLatencySamples bounds the latency window the percentiles are taken
// over.
const maxLatencySamples = 10000

type Aggregator struct {
	mu          sync.RWMutex
	total       atomic.Int64
	refined     atomic.Int64
	partial     atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	empty       atomic.Int64
	flushes     atomic.Int64
	docsIndexed atomic.Int64
	latencies   []int64
	next        int
	fieldCounts map[string]int64
	emptyFields map[string]int64
	startTime   time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:   make([]int64, 0, 1024),
		fieldCounts: make(map[string]int64),
		emptyFields: make(map[string]int64),
		startTime:   time.Now(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler feeding agg. Undecodable messages are
// logged and acknowledged so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var envelope struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch envelope.Type {
		case EventFacet:
			event, err := kafka.DecodeJSON[FacetEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode facet event", "error", err)
				return nil
			}
			agg.RecordFacet(event)
		case EventIndexFlush:
			event, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndex(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", envelope.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordFacet(event FacetEvent) {
	a.total.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Refined {
		a.refined.Add(1)
	}
	if event.FailedShards > 0 {
		a.partial.Add(1)
	}
	if event.Entries == 0 {
		a.empty.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.fieldCounts[event.Field]++
	if event.Entries == 0 {
		a.emptyFields[event.Field]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) RecordIndex(event IndexEvent) {
	a.flushes.Add(1)
	a.docsIndexed.Add(int64(event.Docs))
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRequests:   a.total.Load(),
		RefinedRequests: a.refined.Load(),
		PartialRequests: a.partial.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		EmptyResults:    a.empty.Load(),
		SegmentsFlushed: a.flushes.Load(),
		DocsIndexed:     a.docsIndexed.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopFields = topN(a.fieldCounts, 10)
	stats.EmptyFields = topN(a.emptyFields, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalRequests) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []FieldCount {
	result := make([]FieldCount, 0, len(counts))
	for field, count := range counts {
		result = append(result, FieldCount{Field: field, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Field < result[j].Field
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
