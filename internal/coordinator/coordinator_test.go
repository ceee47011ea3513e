package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/node"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/resilience"
)

var colorSchema = index.NewSchema(index.FieldInfo{Name: "color", Type: index.StrField{}})

type staticSource struct{ snap *index.Snapshot }

func (s staticSource) Snapshot() *index.Snapshot { return s.snap }

// startShard serves a snapshot holding one document per element of values;
// an empty value leaves the document without a color.
func startShard(t *testing.T, values []string) (addr string, stop func()) {
	t.Helper()
	return startShardWith(t, values, facet.Options{EnumCacheMinDF: 16})
}

func startShardWith(t *testing.T, values []string, opts facet.Options) (addr string, stop func()) {
	t.Helper()
	b := index.NewBuilder(colorSchema)
	for i, v := range values {
		fields := map[string][]string{}
		if v != "" {
			fields["color"] = []string{v}
		}
		_, err := b.Add(fmt.Sprintf("doc-%d", i), fields)
		require.NoError(t, err)
	}
	snap := index.NewSnapshot(colorSchema, 1, b.Build("s0").Open(nil))
	svc := node.NewService(staticSource{snap}, facet.New(opts), nil)

	srv := grpc.NewServer()
	svc.Register(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	stopped := false
	stop = func() {
		if !stopped {
			stopped = true
			srv.Stop()
		}
	}
	t.Cleanup(stop)
	return ln.Addr().String(), stop
}

func repeat(counts ...any) []string {
	var out []string
	for i := 0; i < len(counts); i += 2 {
		for range counts[i+1].(int) {
			out = append(out, counts[i].(string))
		}
	}
	return out
}

func newCoordinator(t *testing.T, addrs []string, opts Options) *Coordinator {
	t.Helper()
	if opts.OverrequestRatio == 0 {
		opts.OverrequestRatio = 1
	}
	opts.Retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	c := Dial(addrs, opts)
	t.Cleanup(func() { c.Close() })
	return c
}

func threeShards(t *testing.T) ([]string, []func()) {
	t.Helper()
	shards := [][]string{
		repeat("a", 5, "b", 4, "c", 3, "", 1),
		repeat("c", 5, "b", 4, "a", 1),
		repeat("c", 3, "a", 3, "b", 2, "", 2),
	}
	var addrs []string
	var stops []func()
	for _, values := range shards {
		addr, stop := startShard(t, values)
		addrs = append(addrs, addr)
		stops = append(stops, stop)
	}
	return addrs, stops
}

func TestCountRefinesToExactTopValues(t *testing.T) {
	addrs, _ := threeShards(t)
	c := newCoordinator(t, addrs, Options{Schema: colorSchema})

	resp, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 2, Mincount: 1, Missing: true})
	require.NoError(t, err)
	assert.True(t, resp.Refined)
	assert.Empty(t, resp.FailedShards)
	assert.Equal(t, 3, resp.Shards)
	assert.Equal(t, []proto.FacetEntry{
		{Value: "c", Count: 11},
		{Value: "b", Count: 10},
		{Count: 3, Missing: true},
	}, resp.Entries)
}

func TestCountStaysWithinShardMaxLimit(t *testing.T) {
	opts := facet.Options{EnumCacheMinDF: 16, MaxLimit: 10}
	var addrs []string
	for _, values := range [][]string{
		repeat("a", 5, "b", 4, "c", 3, "d", 2, "e", 1),
		repeat("c", 5, "b", 4, "a", 1, "f", 1),
	} {
		addr, _ := startShardWith(t, values, opts)
		addrs = append(addrs, addr)
	}
	c := newCoordinator(t, addrs, Options{OverrequestRatio: 1.5, OverrequestCount: 10, ShardMaxLimit: 10})

	resp, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 5, Mincount: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.FailedShards)
	assert.Equal(t, []proto.FacetEntry{
		{Value: "b", Count: 8},
		{Value: "c", Count: 8},
		{Value: "a", Count: 6},
		{Value: "d", Count: 2},
		{Value: "e", Count: 1},
	}, resp.Entries)

	// Offset+limit above the shard cap asks shards for every value.
	resp, err = c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Offset: 4, Limit: 8, Mincount: 1})
	require.NoError(t, err)
	assert.Equal(t, []proto.FacetEntry{
		{Value: "e", Count: 1},
		{Value: "f", Count: 1},
	}, resp.Entries)
}

func TestCountIndexOrder(t *testing.T) {
	addrs, _ := threeShards(t)
	c := newCoordinator(t, addrs, Options{})

	resp, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 2, Mincount: 1, Sort: "index"})
	require.NoError(t, err)
	assert.False(t, resp.Refined)
	assert.Equal(t, []proto.FacetEntry{{Value: "a", Count: 9}, {Value: "b", Count: 10}}, resp.Entries)

	resp, err = c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 1, Offset: 1, Mincount: 10, Sort: "index"})
	require.NoError(t, err)
	assert.Equal(t, []proto.FacetEntry{{Value: "c", Count: 11}}, resp.Entries)
}

func TestCountToleratesFailedShard(t *testing.T) {
	addrs, stops := threeShards(t)
	stops[2]()
	c := newCoordinator(t, addrs, Options{Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}})

	req := &proto.FacetCountRequest{Field: "color", Limit: 3, Mincount: 1}
	for range 3 {
		resp, err := c.Count(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, resp.FailedShards)
		assert.Equal(t, []proto.FacetEntry{
			{Value: "b", Count: 8},
			{Value: "c", Count: 8},
			{Value: "a", Count: 6},
		}, resp.Entries)
	}
	assert.Equal(t, "open", c.BreakerStates()[addrs[2]])
	assert.Equal(t, "closed", c.BreakerStates()[addrs[0]])
}

func TestCountFailsWhenAllShardsFail(t *testing.T) {
	addrs, stops := threeShards(t)
	for _, stop := range stops {
		stop()
	}
	c := newCoordinator(t, addrs, Options{})
	_, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 3})
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
}

func TestCountRejectsBadInput(t *testing.T) {
	addrs, _ := threeShards(t)
	c := newCoordinator(t, addrs, Options{})

	_, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "shape", Limit: 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 3, Offset: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 3, Sort: "random"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// Input errors do not count against the shard.
	for _, state := range c.BreakerStates() {
		assert.Equal(t, "closed", state)
	}
}

func TestRefinedCountsAreExact(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := []string{"v00", "v01", "v02", "v03", "v04", "v05", "v06", "v07", "v08", "v09", "v10", "v11"}
	truth := map[string]int64{}
	var addrs []string
	for range 4 {
		var docs []string
		for range 40 + rng.Intn(40) {
			// Skew each shard differently so local and global rankings
			// disagree.
			v := values[min(rng.Intn(len(values)), rng.Intn(len(values)))]
			if rng.Intn(2) == 0 {
				v = values[len(values)-1-rng.Intn(4)]
			}
			docs = append(docs, v)
			truth[v]++
		}
		addr, _ := startShard(t, docs)
		addrs = append(addrs, addr)
	}
	c := newCoordinator(t, addrs, Options{})

	for _, limit := range []int{1, 2, 3, 5} {
		resp, err := c.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: limit, Mincount: 1})
		require.NoError(t, err)
		require.Len(t, resp.Entries, limit)
		for i, e := range resp.Entries {
			assert.Equal(t, truth[e.Value], e.Count, "limit %d value %s", limit, e.Value)
			if i > 0 {
				assert.GreaterOrEqual(t, resp.Entries[i-1].Count, e.Count)
			}
		}
	}
}

func TestStats(t *testing.T) {
	addrs, stops := threeShards(t)
	stops[1]()
	c := newCoordinator(t, addrs, Options{})

	stats, failed := c.Stats(context.Background())
	assert.Equal(t, []int{1}, failed)
	assert.Equal(t, int64(13+10), stats.TotalDocs)
	assert.Equal(t, int64(2), stats.TotalSegments)
	assert.Equal(t, []string{"color"}, stats.Fields)
}
