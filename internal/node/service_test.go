package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facetcache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

type staticSource struct{ snap *index.Snapshot }

func (s staticSource) Snapshot() *index.Snapshot { return s.snap }

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) FlushByPattern(context.Context, string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string][]byte)
	return n, nil
}

// testSnapshot holds six documents in two segments:
//
//	0 red 10, 1 red 20, 2 blue 10, 3 green, 4 (none), 5 red 10
func testSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	schema := index.NewSchema(
		index.FieldInfo{Name: "color", Type: index.StrField{}},
		index.FieldInfo{Name: "size", Type: index.IntField{}},
	)
	segs := [][]map[string][]string{
		{
			{"color": {"red"}, "size": {"10"}},
			{"color": {"red"}, "size": {"20"}},
			{"color": {"blue"}, "size": {"10"}},
			{"color": {"green"}},
		},
		{
			{},
			{"color": {"red"}, "size": {"10"}},
		},
	}
	var opened []*index.Segment
	for i, docs := range segs {
		b := index.NewBuilder(schema)
		for j, d := range docs {
			_, err := b.Add(fmt.Sprintf("d%d-%d", i, j), d)
			require.NoError(t, err)
		}
		opened = append(opened, b.Build(fmt.Sprintf("s%d", i)).Open(nil))
	}
	return index.NewSnapshot(schema, 3, opened...)
}

func newService(t *testing.T, cache *facetcache.Cache) *Service {
	t.Helper()
	return NewService(staticSource{testSnapshot(t)}, facet.New(facet.Options{EnumCacheMinDF: 16}), cache)
}

func serve(t *testing.T, svc *Service) *grpc.Client {
	t.Helper()
	srv := grpc.NewServer()
	svc.Register(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	c, err := grpc.Dial(ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCount(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	resp, err := svc.Count(ctx, &proto.FacetCountRequest{Field: "color", Limit: 2, Missing: true})
	require.NoError(t, err)
	assert.Equal(t, []proto.FacetEntry{
		{Value: "red", Count: 3},
		{Value: "blue", Count: 1},
		{Count: 1, Missing: true},
	}, resp.Entries)
	assert.Equal(t, uint64(3), resp.Generation)

	resp, err = svc.Count(ctx, &proto.FacetCountRequest{
		Field:    "color",
		Limit:    -1,
		Mincount: 1,
		Sort:     "index",
		Filter:   &proto.TermFilter{Field: "size", Value: "10"},
	})
	require.NoError(t, err)
	assert.Equal(t, []proto.FacetEntry{{Value: "blue", Count: 1}, {Value: "red", Count: 2}}, resp.Entries)
}

func TestRequestFromProtoCarriesThreads(t *testing.T) {
	req, err := RequestFromProto(&proto.FacetCountRequest{Field: "color", Limit: 5, Method: "fcs", Threads: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, req.Threads)
	assert.Equal(t, facet.MethodFCS, req.Method)
}

func TestCountThreadsDoNotChangeEntries(t *testing.T) {
	svc := newService(t, nil)
	var want []proto.FacetEntry
	for _, threads := range []int{0, 1, 2, -1} {
		resp, err := svc.Count(context.Background(), &proto.FacetCountRequest{Field: "color", Limit: 10, Missing: true, Method: "fcs", Threads: threads})
		require.NoError(t, err)
		if want == nil {
			want = resp.Entries
			continue
		}
		assert.Equal(t, want, resp.Entries, "threads=%d", threads)
	}
}

func TestCountRejectsBadInput(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	for name, req := range map[string]*proto.FacetCountRequest{
		"no field":       {Limit: 1},
		"unknown field":  {Field: "shape", Limit: 1},
		"bad sort":       {Field: "color", Limit: 1, Sort: "random"},
		"bad method":     {Field: "color", Limit: 1, Method: "dv"},
		"bad filter":     {Field: "color", Limit: 1, Filter: &proto.TermFilter{Field: "size", Value: "ten"}},
		"unknown filter": {Field: "color", Limit: 1, Filter: &proto.TermFilter{Field: "shape", Value: "x"}},
	} {
		_, err := svc.Count(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, name)
	}
}

func TestCountUsesCache(t *testing.T) {
	cache := facetcache.New(&mapStore{data: make(map[string][]byte)}, "node-0", time.Minute, nil)
	svc := newService(t, cache)
	req := &proto.FacetCountRequest{Field: "color", Limit: 10}

	first, err := svc.Count(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.Count(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Entries, second.Entries)
}

func TestRPCMethods(t *testing.T) {
	c := serve(t, newService(t, nil))
	ctx := context.Background()

	var count proto.FacetCountResponse
	require.NoError(t, c.Call(ctx, proto.MethodFacetCount, &proto.FacetCountRequest{Field: "size", Limit: 1}, &count))
	assert.Equal(t, []proto.FacetEntry{{Value: "10", Count: 3}}, count.Entries)

	var refine proto.FacetRefineResponse
	require.NoError(t, c.Call(ctx, proto.MethodFacetRefine, &proto.FacetRefineRequest{
		Field:  "color",
		Values: []string{"green", "purple", ""},
	}, &refine))
	assert.Equal(t, []proto.FacetEntry{
		{Value: "green", Count: 1},
		{Value: "purple", Count: 0},
		{Count: 1, Missing: true},
	}, refine.Entries)

	var stats proto.StatsResponse
	require.NoError(t, c.Call(ctx, proto.MethodIndexStats, &proto.StatsRequest{}, &stats))
	assert.Equal(t, int64(6), stats.TotalDocs)
	assert.Equal(t, int64(2), stats.TotalSegments)
	assert.Equal(t, []string{"color", "size"}, stats.Fields)

	err := c.Call(ctx, proto.MethodFacetCount, &proto.FacetCountRequest{Field: "shape", Limit: 1}, &count)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
