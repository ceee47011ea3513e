// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and the Router dispatches documents by a hash of their ID.
package shard

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines   map[int]*indexer.Engine
	mu        sync.RWMutex
	numShards int
	logger    *slog.Logger
}

// Dir returns the data directory of shardID under base. A single shard
// uses base itself.
func Dir(base string, shardID, numShards int) string {
	if numShards <= 1 {
		return base
	}
	return filepath.Join(base, fmt.Sprintf("shard-%d", shardID))
}

// NewRouter creates numShards engines, each in its own sub-directory under
// baseCfg.DataDir. optsFor supplies per-shard engine options.
func NewRouter(baseCfg config.IndexerConfig, schema *index.Schema, numShards int, optsFor func(shardID int) indexer.Options) (*Router, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("number of shards must be positive, got %d", numShards)
	}
	r := &Router{
		engines:   make(map[int]*indexer.Engine, numShards),
		numShards: numShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := baseCfg
		shardCfg.DataDir = Dir(baseCfg.DataDir, i, numShards)
		var opts indexer.Options
		if optsFor != nil {
			opts = optsFor(i)
		}
		engine, err := indexer.NewEngine(shardCfg, schema, opts)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// For returns the shard owning docID among numShards. Every version of a
// document lands on the same shard, so replacing and deleting stay
// shard-local.
func For(docID string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(numShards))
}

// ShardFor returns the shard owning docID.
func (r *Router) ShardFor(docID string) int {
	return For(docID, r.numShards)
}

// Route returns the Engine responsible for docID.
func (r *Router) Route(docID string) *indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[r.ShardFor(docID)]
}

// IndexDocument routes doc to its shard.
func (r *Router) IndexDocument(doc indexer.Document) error {
	return r.Route(doc.ID).IndexDocument(doc)
}

// DeleteDocument routes the delete of id to its shard.
func (r *Router) DeleteDocument(id string) bool {
	return r.Route(id).DeleteDocument(id)
}

// Engine returns the Engine of shardID.
func (r *Router) Engine(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return engine, nil
}

// GetAllEngines returns a snapshot map of all shard engines.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every shard engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
