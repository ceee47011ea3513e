package facetcache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

var colorEntries = []facet.Entry{{Value: "red", Count: 4}, {Value: "blue", Count: 1}, {Count: 2, Missing: true}}

func colorKey(gen uint64) Key {
	return Key{Generation: gen, Request: facet.Request{Field: "color", Limit: 10, Sort: facet.SortCount, Missing: true}}
}

func TestGetOrComputeCaches(t *testing.T) {
	c := New(newMemStore(), "node-0", time.Minute, nil)
	ctx := context.Background()
	calls := 0
	compute := func() ([]facet.Entry, error) {
		calls++
		return colorEntries, nil
	}

	got, hit, err := c.GetOrCompute(ctx, colorKey(1), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, colorEntries, got)

	got, hit, err = c.GetOrCompute(ctx, colorKey(1), compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, colorEntries, got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGenerationChangesKey(t *testing.T) {
	c := New(newMemStore(), "node-0", time.Minute, nil)
	ctx := context.Background()
	calls := 0
	compute := func() ([]facet.Entry, error) {
		calls++
		return colorEntries, nil
	}
	_, _, err := c.GetOrCompute(ctx, colorKey(1), compute)
	require.NoError(t, err)
	_, hit, err := c.GetOrCompute(ctx, colorKey(2), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestKeyIgnoresExecutionParameters(t *testing.T) {
	cache := New(newMemStore(), "node-0", time.Minute, nil)
	buildKey := cache.buildKey
	a := colorKey(1)
	b := colorKey(1)
	b.Request.Threads = 8
	b.Request.Method = facet.MethodEnum
	assert.Equal(t, buildKey(a), buildKey(b))

	b.Request.Offset = 1
	assert.NotEqual(t, buildKey(a), buildKey(b))

	c := colorKey(1)
	c.Filter = "size:10"
	assert.NotEqual(t, buildKey(a), buildKey(c))
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(newMemStore(), "node-0", time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), colorKey(1), func() ([]facet.Entry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), colorKey(1))
	assert.False(t, ok)
}

func TestStoreFailureFallsBackToCompute(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, "node-0", time.Minute, nil)
	got, hit, err := c.GetOrCompute(context.Background(), colorKey(1), func() ([]facet.Entry, error) {
		return colorEntries, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, colorEntries, got)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), "node-0", time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]facet.Entry, error) {
		calls.Add(1)
		<-release
		return colorEntries, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), colorKey(1), compute)
			assert.NoError(t, err)
			assert.Equal(t, colorEntries, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestScopesDoNotShareKeys(t *testing.T) {
	store := newMemStore()
	a := New(store, "node-0", time.Minute, nil)
	b := New(store, "node-0", time.Minute, nil)
	a.Set(context.Background(), colorKey(1), colorEntries)
	_, ok := b.Get(context.Background(), colorKey(1))
	assert.False(t, ok, "a restarted node must not see entries of its previous epoch")
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, "node-0", time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, colorKey(1), colorEntries)
	c.Set(ctx, colorKey(2), colorEntries)
	store.data["other"] = []byte("x")

	other := New(store, "node-1", time.Minute, nil)
	other.Set(ctx, colorKey(1), colorEntries)

	require.NoError(t, c.Invalidate(ctx))
	assert.Len(t, store.data, 2)
	_, ok := c.Get(ctx, colorKey(1))
	assert.False(t, ok)
	_, ok = other.Get(ctx, colorKey(1))
	assert.True(t, ok)
}

func TestNilCacheComputes(t *testing.T) {
	var c *Cache
	got, hit, err := c.GetOrCompute(context.Background(), colorKey(1), func() ([]facet.Entry, error) {
		return colorEntries, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, colorEntries, got)
}
