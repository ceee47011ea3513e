// Package analytics records what facet requests and index flushes do. The
// coordinator and indexer push events through a BatchCollector onto Kafka;
// the analytics service consumes them into an Aggregator and snapshots the
// totals to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventFacet      EventType = "facet"
	EventIndexFlush EventType = "index_flush"
)

// FacetEvent describes one answered facet request.
type FacetEvent struct {
	Type         EventType `json:"type"`
	Field        string    `json:"field"`
	Method       string    `json:"method,omitempty"`
	Sort         string    `json:"sort"`
	Entries      int       `json:"entries"`
	Shards       int       `json:"shards"`
	FailedShards int       `json:"failed_shards"`
	Refined      bool      `json:"refined"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// IndexEvent describes one segment flush.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Segment   string    `json:"segment"`
	Docs      int       `json:"docs"`
	Deleted   int       `json:"deleted"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
