package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

func TestBuildQueries(t *testing.T) {
	qs := buildQueries([]string{"color", "size"}, []string{"brand:acme"})
	assert.Len(t, qs, 2*5*2)
	assert.Equal(t, "/api/v1/facet/color", qs[0].Path)
	assert.Equal(t, "limit=10", qs[0].RawQuery)
	assert.Equal(t, "fq=brand%3Aacme&limit=10", qs[1].RawQuery)
	assert.Empty(t, buildQueries(nil, nil))
}

func TestRecordRequest(t *testing.T) {
	s := NewStats()
	s.RecordRequest(time.Millisecond, 200, &proto.FacetCountResponse{CacheHit: true, FailedShards: []int{1}}, nil)
	s.RecordRequest(2*time.Millisecond, 503, nil, nil)
	s.RecordRequest(0, 0, nil, assert.AnError)

	assert.Equal(t, int64(3), s.totalRequests.Load())
	assert.Equal(t, int64(1), s.successCount.Load())
	assert.Equal(t, int64(2), s.errorCount.Load())
	assert.Equal(t, int64(1), s.cacheHits.Load())
	assert.Equal(t, int64(1), s.partial.Load())
	assert.Len(t, s.latencies, 2)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
}
