// Package publisher turns accepted ingestion requests into DocumentEvents on
// the ingest topic. Events are keyed by document ID so that every version
// of a document lands on the same Kafka partition and is applied in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

// EventWriter is implemented by kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher publishes document events and reports the shard each document
// will be indexed on.
type Publisher struct {
	writer    EventWriter
	numShards int
	logger    *slog.Logger
}

// New creates a Publisher. numShards must match the indexer's --shards so
// the reported shard IDs are accurate.
func New(writer EventWriter, numShards int) *Publisher {
	return &Publisher{
		writer:    writer,
		numShards: max(numShards, 1),
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest publishes an upsert for req, assigning an ID when it has none.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	event, resp := p.upsert(req)
	if err := p.writer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing document %s: %w", resp.DocumentID, err)
	}
	return resp, nil
}

// IngestBatch publishes every request in one write. Either all events are
// published or an error is returned.
func (p *Publisher) IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]*ingestion.IngestResponse, error) {
	events := make([]kafka.Event, 0, len(reqs))
	resps := make([]*ingestion.IngestResponse, 0, len(reqs))
	for i := range reqs {
		event, resp := p.upsert(&reqs[i])
		events = append(events, event)
		resps = append(resps, resp)
	}
	if err := p.writer.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing batch of %d documents: %w", len(events), err)
	}
	p.logger.Info("batch published", "documents", len(events))
	return resps, nil
}

// Delete publishes a delete for id.
func (p *Publisher) Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error) {
	event := kafka.Event{
		Key: id,
		Value: proto.DocumentEvent{
			ID:         id,
			Op:         proto.OpDelete,
			IngestedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := p.writer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing delete of %s: %w", id, err)
	}
	return p.response(id, proto.OpDelete), nil
}

func (p *Publisher) upsert(req *ingestion.IngestRequest) (kafka.Event, *ingestion.IngestResponse) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	event := kafka.Event{
		Key: id,
		Value: proto.DocumentEvent{
			ID:         id,
			Op:         proto.OpUpsert,
			Fields:     req.Fields,
			IngestedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	return event, p.response(id, proto.OpUpsert)
}

func (p *Publisher) response(id, op string) *ingestion.IngestResponse {
	return &ingestion.IngestResponse{
		DocumentID: id,
		Op:         op,
		Status:     ingestion.StatusQueued,
		ShardID:    shard.For(id, p.numShards),
	}
}
