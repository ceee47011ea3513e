package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/postgres"
)

// RowSource streams (document, field, value) rows; postgres.Client
// implements it.
type RowSource interface {
	StreamFieldRows(ctx context.Context, query string, fn func(postgres.FieldRow) error) error
}

// LoadStats summarises one bulk load.
type LoadStats struct {
	Rows     int
	Docs     int
	Rejected int
	Duration time.Duration
}

// Load indexes every document the query returns. Rows must arrive grouped
// by document ID; a document whose rows are split is indexed twice and the
// later version wins. Documents the schema rejects are counted and skipped.
func Load(ctx context.Context, src RowSource, query string, idx Indexer) (LoadStats, error) {
	logger := slog.Default().With("component", "pg-loader")
	start := time.Now()
	var stats LoadStats
	var cur *indexer.Document

	emit := func() {
		if cur == nil {
			return
		}
		if err := idx.IndexDocument(*cur); err != nil {
			stats.Rejected++
			logger.Warn("document rejected", "doc_id", cur.ID, "error", err)
		} else {
			stats.Docs++
		}
		cur = nil
	}

	err := src.StreamFieldRows(ctx, query, func(row postgres.FieldRow) error {
		stats.Rows++
		if cur != nil && cur.ID != row.DocID {
			emit()
		}
		if cur == nil {
			cur = &indexer.Document{ID: row.DocID, Fields: make(map[string][]string)}
		}
		if row.Field != "" {
			cur.Fields[row.Field] = append(cur.Fields[row.Field], row.Value)
		}
		if stats.Rows%10000 == 0 {
			logger.Info("load progress", "rows", stats.Rows, "docs", stats.Docs)
		}
		return ctx.Err()
	})
	if err != nil {
		return stats, fmt.Errorf("loading documents: %w", err)
	}
	emit()
	stats.Duration = time.Since(start)
	logger.Info("load complete",
		"rows", stats.Rows,
		"docs", stats.Docs,
		"rejected", stats.Rejected,
		"duration", stats.Duration,
	)
	return stats, nil
}
