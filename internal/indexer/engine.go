// Package indexer turns documents into facet segments on disk and serves
// the resulting index snapshots. Engine is the write side used by the
// indexer service; Directory is the read side used by shard nodes, kept
// current by a Watcher.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
)

// Document is one indexable document: readable values per field.
type Document struct {
	ID     string
	Fields map[string][]string
}

// Options wires optional collaborators into an Engine.
type Options struct {
	Metrics *metrics.Metrics
	// OnFlush is called after every successful flush that wrote a segment
	// or deletes.
	OnFlush func(analytics.IndexEvent)
}

type docRef struct {
	segment string
	local   uint32
}

// Engine buffers documents in an index.Builder and flushes them into
// segment files. Re-indexing an ID deletes its previous version. Engine is
// safe for concurrent use.
type Engine struct {
	dir     *Directory
	writer  *segment.Writer
	cfg     config.IndexerConfig
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu              sync.Mutex
	builder         *index.Builder
	buffered        map[string]uint32
	bufferedDeleted *docset.Bitmap
	ids             map[string]docRef
	pendingDeletes  map[string]*docset.Bitmap
	nextSeq         int
}

func NewEngine(cfg config.IndexerConfig, schema *index.Schema, opts Options) (*Engine, error) {
	compression, err := segment.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	dir, err := OpenDirectory(cfg.DataDir, schema, opts.Metrics)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		dir:             dir,
		writer:          segment.NewWriter(cfg.DataDir, compression),
		cfg:             cfg,
		opts:            opts,
		logger:          slog.Default().With("component", "indexer", "dir", cfg.DataDir),
		metrics:         opts.Metrics,
		builder:         index.NewBuilder(schema),
		buffered:        make(map[string]uint32),
		bufferedDeleted: docset.New(),
		ids:             make(map[string]docRef),
		pendingDeletes:  make(map[string]*docset.Bitmap),
		nextSeq:         1,
	}
	dir.liveIDs(func(seg string, local uint32, id string) {
		e.ids[id] = docRef{segment: seg, local: local}
		if n := segmentSeq(seg); n >= e.nextSeq {
			e.nextSeq = n + 1
		}
	})
	return e, nil
}

// segmentSeq parses the sequence number out of a segment name, 0 if the
// name was not produced by segmentName.
func segmentSeq(name string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(name, "seg_"), "%d", &n); err != nil {
		return 0
	}
	return n
}

func segmentName(seq int) string {
	return fmt.Sprintf("seg_%06d", seq)
}

// IndexDocument buffers doc, replacing any earlier version with the same
// ID. The buffer is flushed once it holds SegmentMaxDocs documents.
func (e *Engine) IndexDocument(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	local, err := e.builder.Add(doc.ID, doc.Fields)
	if err != nil {
		return err
	}
	e.deleteLocked(doc.ID)
	e.buffered[doc.ID] = local
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document buffered", "doc_id", doc.ID, "buffered", e.builder.Len())

	if e.cfg.SegmentMaxDocs > 0 && e.builder.Len() >= e.cfg.SegmentMaxDocs {
		e.logger.Info("buffer reached max size, flushing to disk",
			"size", e.builder.Len(),
			"threshold", e.cfg.SegmentMaxDocs,
		)
		if err := e.flushLocked(); err != nil {
			return fmt.Errorf("flushing buffered documents: %w", err)
		}
	}
	return nil
}

// DeleteDocument marks id deleted. It reports whether the ID was known.
// The delete becomes visible with the next flush.
func (e *Engine) DeleteDocument(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.deleteLocked(id)
	if ok && e.metrics != nil {
		e.metrics.DocsDeletedTotal.Inc()
	}
	return ok
}

func (e *Engine) deleteLocked(id string) bool {
	if local, ok := e.buffered[id]; ok {
		e.bufferedDeleted.Add(local)
		delete(e.buffered, id)
		return true
	}
	ref, ok := e.ids[id]
	if !ok {
		return false
	}
	del, ok := e.pendingDeletes[ref.segment]
	if !ok {
		del = docset.New()
		e.pendingDeletes[ref.segment] = del
	}
	del.Add(ref.local)
	delete(e.ids, id)
	return true
}

// Flush writes buffered documents into a new segment and persists pending
// deletes, then publishes a new snapshot.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.builder.Len() == 0 && len(e.pendingDeletes) == 0 {
		return nil
	}
	start := time.Now()

	var reader *segment.Reader
	var readerDeleted *docset.Bitmap
	name := ""
	docs := e.builder.Len()
	if docs > 0 {
		name = segmentName(e.nextSeq)
		data := e.builder.Build(name)
		path, err := e.writer.Write(data)
		if err != nil {
			e.dropBuffered(err)
			e.flushed("error")
			return fmt.Errorf("writing segment %s: %w", name, err)
		}
		e.nextSeq++
		if !e.bufferedDeleted.IsEmpty() {
			readerDeleted = e.bufferedDeleted
			if err := segment.WriteDeletes(path, readerDeleted); err != nil {
				e.dropBuffered(err)
				e.flushed("error")
				return fmt.Errorf("segment %s: %w", name, err)
			}
		}
		reader, err = segment.OpenReader(path)
		if err != nil {
			e.dropBuffered(err)
			e.flushed("error")
			return fmt.Errorf("opening new segment for reading: %w", err)
		}
	}

	deleted := 0
	for _, del := range e.pendingDeletes {
		deleted += del.Size()
	}
	if err := e.dir.commit(reader, readerDeleted, e.pendingDeletes); err != nil {
		if reader != nil {
			reader.Close()
			e.dropBuffered(err)
		}
		e.flushed("error")
		return err
	}

	for id, local := range e.buffered {
		e.ids[id] = docRef{segment: name, local: local}
	}
	e.buffered = make(map[string]uint32)
	e.bufferedDeleted = docset.New()
	e.pendingDeletes = make(map[string]*docset.Bitmap)
	e.flushed("success")

	event := analytics.IndexEvent{
		Segment:   name,
		Docs:      docs,
		Deleted:   deleted,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if e.opts.OnFlush != nil {
		e.opts.OnFlush(event)
	}
	e.logger.Info("segment flushed",
		"segment", name,
		"docs", docs,
		"deletes", deleted,
		"generation", e.dir.Snapshot().Generation(),
		"duration", time.Since(start),
	)
	return nil
}

// dropBuffered forgets buffered documents after Build emptied the builder
// and the segment could not be committed.
func (e *Engine) dropBuffered(err error) {
	e.logger.Error("dropping buffered documents", "docs", len(e.buffered), "error", err)
	e.buffered = make(map[string]uint32)
	e.bufferedDeleted = docset.New()
}

func (e *Engine) flushed(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Snapshot returns the latest flushed view of the index.
func (e *Engine) Snapshot() *index.Snapshot {
	return e.dir.Snapshot()
}

// Buffered returns the number of documents waiting for a flush.
func (e *Engine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffered)
}

// StartFlushLoop flushes every FlushInterval until ctx is done, then
// performs a final flush.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes and closes every segment file.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	return e.dir.Close()
}
