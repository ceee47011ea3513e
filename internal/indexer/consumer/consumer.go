// Package consumer feeds documents into the indexer: DocumentEvents read
// from Kafka, or (document, field, value) rows bulk-loaded from PostgreSQL.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

// Indexer is implemented by indexer.Engine and shard.Router.
type Indexer interface {
	IndexDocument(doc indexer.Document) error
	DeleteDocument(id string) bool
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler applying every DocumentEvent
// to idx. Malformed events and documents the schema rejects are logged and
// acknowledged; redelivering them cannot succeed.
func HandleMessage(idx Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.ID == "" {
			event.ID = string(key)
		}
		if event.ID == "" {
			logger.Error("document event without id")
			return nil
		}

		switch event.Op {
		case proto.OpDelete:
			found := idx.DeleteDocument(event.ID)
			logger.Debug("document deleted", "doc_id", event.ID, "found", found)
		case "", proto.OpUpsert:
			if err := idx.IndexDocument(indexer.Document{ID: event.ID, Fields: event.Fields}); err != nil {
				logger.Error("document rejected",
					"doc_id", event.ID,
					"error", err,
				)
				return nil
			}
			logger.Debug("document indexed", "doc_id", event.ID)
		default:
			logger.Error("unknown document operation", "doc_id", event.ID, "op", event.Op)
		}
		return nil
	}
}
