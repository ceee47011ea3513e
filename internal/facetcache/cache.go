// Package facetcache caches computed facet entries in Redis. Keys include
// the index generation the entries were computed on, so a reload makes old
// entries unreachable and the TTL reclaims them. Generations restart with
// the process, so every Cache also keys on a random epoch.
package facetcache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/redis"
)

const keyPrefix = "facet:"

// Store is the subset of pkg/redis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached computation. Filter is the canonical form of
// whatever restricted the document set, empty for all live documents.
type Key struct {
	Generation uint64
	Request    facet.Request
	Filter     string
}

type Cache struct {
	store   Store
	prefix  string
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	epoch   string
}

// New returns a cache over store whose keys live under scope, usually the
// node ID. A nil *Cache computes every request.
func New(store Store, scope string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store:   store,
		prefix:  keyPrefix + scope + ":",
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "facet-cache", "scope", scope),
		epoch:   uuid.NewString()[:8],
	}
}

func (c *Cache) Get(ctx context.Context, k Key) ([]facet.Entry, bool) {
	key := c.buildKey(k)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var entries []facet.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "field", k.Request.Field, "key", key)
	return entries, true
}

func (c *Cache) Set(ctx context.Context, k Key, entries []facet.Entry) {
	key := c.buildKey(k)
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached entries for k or runs compute once per key
// across concurrent callers and caches its result. Errors are not cached.
// The boolean reports a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, k Key, compute func() ([]facet.Entry, error)) ([]facet.Entry, bool, error) {
	if c == nil {
		entries, err := compute()
		return entries, false, err
	}
	if entries, ok := c.Get(ctx, k); ok {
		return entries, true, nil
	}
	val, err, _ := c.group.Do(c.buildKey(k), func() (any, error) {
		entries, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, entries)
		return entries, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]facet.Entry), false, nil
}

// Invalidate drops every facet cached under this scope, whatever its
// generation or epoch.
func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, c.prefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating facet cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes every request parameter that changes the result. Threads
// and Method only change how the entries are computed.
func (c *Cache) buildKey(k Key) string {
	r := k.Request
	raw := fmt.Sprintf("field=%s|offset=%d|limit=%d|mincount=%d|missing=%t|sort=%s|prefix=%q|filter=%q",
		r.Field, r.Offset, r.Limit, r.Mincount, r.Missing, r.Sort, r.Prefix, k.Filter)
	hash := sha256.Sum256([]byte(raw))
	return c.prefix + c.epoch + ":" + strconv.FormatUint(k.Generation, 10) + ":" + fmt.Sprintf("%x", hash[:16])
}
