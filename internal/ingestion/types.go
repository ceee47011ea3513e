// Package ingestion defines the request and response types of the document
// ingestion API. Accepted documents are published as proto.DocumentEvents
// on the ingest topic, where the indexer picks them up.
package ingestion

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty ID is assigned by the service.
type IngestRequest struct {
	ID     string              `json:"id"`
	Fields map[string][]string `json:"fields"`
}

// BatchRequest is the body of POST /api/v1/documents/batch.
type BatchRequest struct {
	Documents []IngestRequest `json:"documents"`
}

// IngestResponse is returned once a document event has been published.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Op         string `json:"op"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}

// Status reported for every published event. The document becomes
// countable after the owning shard flushes.
const StatusQueued = "QUEUED"
