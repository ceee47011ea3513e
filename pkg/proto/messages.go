// Package proto defines the shared message types exchanged between the
// coordinator and facet shard nodes.
//
// The types use JSON struct tags for serialization over the engine's
// lightweight JSON-over-TCP RPC layer (see pkg/grpc).
package proto

// RPC method names served by a shard node.
const (
	MethodFacetCount  = "FacetService.Count"
	MethodFacetRefine = "FacetService.Refine"
	MethodIndexStats  = "IndexService.Stats"
)

// ---------- Common ----------

// TermFilter restricts a request to documents whose Field holds Value.
// A nil filter means every live document.
type TermFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ---------- Facet ----------

// FacetEntry is one value and its count. The missing bucket has Missing set
// and an empty Value.
type FacetEntry struct {
	Value   string `json:"value"`
	Count   int64  `json:"count"`
	Missing bool   `json:"missing,omitempty"`
}

// FacetCountRequest is the input to the Count RPC. Limit < 0 asks for every
// value. Threads caps the segments a shard counts at once: 0 keeps the
// node's default and a negative value lifts the cap.
type FacetCountRequest struct {
	Field    string      `json:"field"`
	Offset   int         `json:"offset"`
	Limit    int         `json:"limit"`
	Mincount int         `json:"mincount"`
	Missing  bool        `json:"missing,omitempty"`
	Sort     string      `json:"sort,omitempty"`
	Prefix   string      `json:"prefix,omitempty"`
	Method   string      `json:"method,omitempty"`
	Threads  int         `json:"threads,omitempty"`
	Filter   *TermFilter `json:"filter,omitempty"`
}

// FacetCountResponse is the output of the Count RPC. The coordinator
// answers with the same shape; Shards and the fields after it are only set
// on merged responses.
type FacetCountResponse struct {
	Field        string       `json:"field"`
	Entries      []FacetEntry `json:"entries"`
	Generation   uint64       `json:"generation,omitempty"`
	LatencyMs    int64        `json:"latency_ms"`
	CacheHit     bool         `json:"cache_hit,omitempty"`
	Shards       int          `json:"shards,omitempty"`
	FailedShards []int        `json:"failed_shards,omitempty"`
	Refined      bool         `json:"refined,omitempty"`
}

// FacetRefineRequest asks a shard for exact counts of specific values. An
// empty value asks for the missing bucket.
type FacetRefineRequest struct {
	Field  string      `json:"field"`
	Values []string    `json:"values"`
	Filter *TermFilter `json:"filter,omitempty"`
}

// FacetRefineResponse carries one entry per requested value, in request
// order.
type FacetRefineResponse struct {
	Field   string       `json:"field"`
	Entries []FacetEntry `json:"entries"`
}

// ---------- Index ----------

// StatsRequest is the input to the Stats RPC.
type StatsRequest struct{}

// StatsResponse contains index-level statistics of one shard node.
type StatsResponse struct {
	Generation    uint64   `json:"generation"`
	TotalDocs     int64    `json:"total_docs"`
	MaxDoc        int64    `json:"max_doc"`
	TotalSegments int64    `json:"total_segments"`
	Fields        []string `json:"fields"`
}

// ---------- Ingest ----------

// Document operations carried by DocumentEvent.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// DocumentEvent is the Kafka payload the indexer consumes. An empty Op
// means upsert.
type DocumentEvent struct {
	ID         string              `json:"id"`
	Op         string              `json:"op,omitempty"`
	Fields     map[string][]string `json:"fields,omitempty"`
	IngestedAt string              `json:"ingested_at,omitempty"`
}

// IndexCompleteEvent announces a flush on the index-complete topic.
type IndexCompleteEvent struct {
	Shard     int    `json:"shard"`
	Segment   string `json:"segment"`
	Docs      int    `json:"docs"`
	Deleted   int    `json:"deleted"`
	FlushedAt string `json:"flushed_at"`
}
