// Package node serves one index shard: it answers facet counts, refinement
// lookups and index statistics over the latest published snapshot, both as
// RPC methods for the coordinator and as the Counter behind the HTTP API.
package node

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facetcache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

// SnapshotSource publishes the current index snapshot. indexer.Directory
// and indexer.Engine both satisfy it.
type SnapshotSource interface {
	Snapshot() *index.Snapshot
}

type Service struct {
	source  SnapshotSource
	faceter *facet.Faceter
	cache   *facetcache.Cache
	logger  *slog.Logger
}

// NewService answers requests from source. cache may be nil.
func NewService(source SnapshotSource, faceter *facet.Faceter, cache *facetcache.Cache) *Service {
	return &Service{
		source:  source,
		faceter: faceter,
		cache:   cache,
		logger:  logger.WithComponent("node"),
	}
}

// Count computes one field facet. Every call reads a single snapshot, so
// concurrent reloads never mix segments of two generations.
func (s *Service) Count(ctx context.Context, req *proto.FacetCountRequest) (*proto.FacetCountResponse, error) {
	start := time.Now()
	fr, err := RequestFromProto(req)
	if err != nil {
		return nil, err
	}
	snap := s.source.Snapshot()
	docs, err := filterDocs(snap, req.Filter)
	if err != nil {
		return nil, err
	}

	key := facetcache.Key{Generation: snap.Generation(), Request: fr, Filter: FilterKey(req.Filter)}
	entries, hit, err := s.cache.GetOrCompute(ctx, key, func() ([]facet.Entry, error) {
		return s.faceter.ComputeFieldFacet(ctx, snap, docs, fr)
	})
	if err != nil {
		return nil, err
	}
	return &proto.FacetCountResponse{
		Field:      req.Field,
		Entries:    EntriesToProto(entries),
		Generation: snap.Generation(),
		LatencyMs:  time.Since(start).Milliseconds(),
		CacheHit:   hit,
	}, nil
}

// Refine returns exact counts of the requested values.
func (s *Service) Refine(ctx context.Context, req *proto.FacetRefineRequest) (*proto.FacetRefineResponse, error) {
	snap := s.source.Snapshot()
	docs, err := filterDocs(snap, req.Filter)
	if err != nil {
		return nil, err
	}
	entries, err := s.faceter.ListedTermCounts(ctx, snap, docs, req.Field, req.Values)
	if err != nil {
		return nil, err
	}
	logger.Contextual(ctx, s.logger).Debug("refined",
		"field", req.Field,
		"values", len(req.Values),
		"generation", snap.Generation(),
	)
	return &proto.FacetRefineResponse{Field: req.Field, Entries: EntriesToProto(entries)}, nil
}

func (s *Service) Stats(ctx context.Context) *proto.StatsResponse {
	snap := s.source.Snapshot()
	return &proto.StatsResponse{
		Generation:    snap.Generation(),
		TotalDocs:     int64(snap.NumDocs()),
		MaxDoc:        int64(snap.MaxDoc()),
		TotalSegments: int64(len(snap.Leaves())),
		Fields:        snap.Schema().Names(),
	}
}

// Register exposes Count, Refine and Stats on srv.
func (s *Service) Register(srv *grpc.Server) {
	srv.Register(proto.MethodFacetCount, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.FacetCountRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.InputError("", "decoding count request: %v", err)
		}
		return s.Count(ctx, &req)
	})
	srv.Register(proto.MethodFacetRefine, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.FacetRefineRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.InputError("", "decoding refine request: %v", err)
		}
		return s.Refine(ctx, &req)
	})
	srv.Register(proto.MethodIndexStats, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.Stats(ctx), nil
	})
}

// filterDocs resolves f to the documents it matches; nil means all live
// documents.
func filterDocs(snap *index.Snapshot, f *proto.TermFilter) (docset.DocSet, error) {
	if f == nil {
		return nil, nil
	}
	docs, err := snap.TermDocs(f.Field, f.Value)
	if err != nil {
		return nil, apperrors.InputError(f.Field, "filter %q: %v", f.Value, err)
	}
	return docs, nil
}
