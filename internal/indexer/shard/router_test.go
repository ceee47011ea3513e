package shard

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
)

func TestRouterSpreadsAndKeepsDocumentsTogether(t *testing.T) {
	base := t.TempDir()
	schema := index.NewSchema(index.FieldInfo{Name: "color"})
	r, err := NewRouter(config.IndexerConfig{DataDir: base, SegmentMaxDocs: 100}, schema, 3, nil)
	require.NoError(t, err)
	defer r.Close()

	for i := range 60 {
		id := fmt.Sprintf("doc-%d", i)
		require.NoError(t, r.IndexDocument(indexer.Document{ID: id, Fields: map[string][]string{"color": {"red"}}}))
		assert.Equal(t, r.ShardFor(id), r.ShardFor(id))
	}
	require.True(t, r.DeleteDocument("doc-7"))
	require.NoError(t, r.FlushAll())

	total := 0
	for id, e := range r.GetAllEngines() {
		n := e.Snapshot().NumDocs()
		assert.Positive(t, n, "shard %d is empty", id)
		total += n
	}
	assert.Equal(t, 59, total)

	_, err = r.Engine(3)
	assert.Error(t, err)
	assert.Equal(t, filepath.Join(base, "shard-2"), Dir(base, 2, 3))
	assert.Equal(t, base, Dir(base, 0, 1))
}

func TestRouterRejectsZeroShards(t *testing.T) {
	_, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir()}, index.NewSchema(), 0, nil)
	assert.Error(t, err)
}

func TestForMatchesRouter(t *testing.T) {
	schema := index.NewSchema(index.FieldInfo{Name: "color"})
	r, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxDocs: 100}, schema, 4, nil)
	require.NoError(t, err)
	defer r.Close()

	for i := range 20 {
		id := fmt.Sprintf("doc-%d", i)
		assert.Equal(t, r.ShardFor(id), For(id, 4))
	}
	assert.Equal(t, 0, For("anything", 1))
}
