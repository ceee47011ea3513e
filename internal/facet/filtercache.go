package facet

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
)

type filterKey struct {
	snapshot uint64
	field    string
	value    string
}

// FilterCache keeps the live document set of frequently counted values.
// Entries are keyed by snapshot ID, so a reload or another index never
// shares sets; old snapshots age out of the LRU.
type FilterCache struct {
	lru     *lru.Cache[filterKey, *docset.Bitmap]
	metrics *metrics.Metrics
}

// NewFilterCache returns a cache holding at most size document sets.
func NewFilterCache(size int, m *metrics.Metrics) (*FilterCache, error) {
	c, err := lru.New[filterKey, *docset.Bitmap](size)
	if err != nil {
		return nil, err
	}
	return &FilterCache{lru: c, metrics: m}, nil
}

// GetOrLoad returns the cached set for (snapshot ID, field, value), calling
// load on a miss. Sets handed out are shared and must not be modified.
func (c *FilterCache) GetOrLoad(snapshotID uint64, field string, value []byte, load func() *docset.Bitmap) *docset.Bitmap {
	key := filterKey{snapshot: snapshotID, field: field, value: string(value)}
	if set, ok := c.lru.Get(key); ok {
		if c.metrics != nil {
			c.metrics.FilterCacheHitsTotal.Inc()
		}
		return set
	}
	if c.metrics != nil {
		c.metrics.FilterCacheMissesTotal.Inc()
	}
	set := load()
	c.lru.Add(key, set)
	return set
}

func (c *FilterCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *FilterCache) Purge() {
	c.lru.Purge()
}
