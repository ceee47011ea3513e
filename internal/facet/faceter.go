package facet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/tracing"
)

// Options configures a Faceter.
type Options struct {
	// Threads is the pool limit used by fcs when a request leaves Threads
	// at 0.
	Threads int
	// EnumCacheMinDF is the document frequency from which enumeration uses
	// the filter cache instead of walking postings.
	EnumCacheMinDF int
	// MaxLimit rejects requests asking for more entries. 0 disables the
	// check.
	MaxLimit      int
	DefaultMethod Method
	Cache         *FilterCache
	Metrics       *metrics.Metrics
	Tracer        *tracing.Tracer
	Logger        *slog.Logger
}

// Faceter computes field facets over index snapshots. It holds no
// per-request state and is safe for concurrent use.
type Faceter struct {
	opts    Options
	cache   *FilterCache
	metrics facetMetrics
	tracer  *tracing.Tracer
	logger  *slog.Logger
}

func New(opts Options) *Faceter {
	if opts.DefaultMethod == "" {
		opts.DefaultMethod = MethodFCS
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("facet")
	}
	return &Faceter{
		opts:    opts,
		cache:   opts.Cache,
		metrics: facetMetrics{opts.Metrics},
		tracer:  opts.Tracer,
		logger:  opts.Logger,
	}
}

// ComputeFieldFacet counts the values of req.Field among docs and returns
// them ranked per req. A nil docs means every live document. When
// req.Missing is set the missing bucket is appended last.
func (f *Faceter) ComputeFieldFacet(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, req Request) ([]Entry, error) {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, "facet.field", "")
	defer f.tracer.Finish(span)
	span.SetAttr("field", req.Field)

	info, req, err := f.prepare(snap, req)
	if err != nil {
		f.metrics.request(req.Method, "input_error", start)
		return nil, err
	}
	span.SetAttr("method", string(req.Method))
	if docs == nil {
		docs = snap.LiveDocs()
	}

	entries, partitions, err := f.compute(ctx, snap, docs, info, req)
	if err != nil {
		err = apperrors.ExecutionError(req.Field, err)
		result := "error"
		if errors.Is(err, apperrors.ErrInterrupted) {
			result = "interrupted"
		}
		f.metrics.request(req.Method, result, start)
		logger.WithField(logger.Contextual(ctx, f.logger), req.Field).Warn("facet computation failed",
			"method", req.Method,
			"error", err,
		)
		return nil, err
	}

	f.metrics.request(req.Method, "ok", start)
	f.metrics.entries(len(entries))
	span.SetAttr("entries", len(entries))
	logger.WithField(logger.Contextual(ctx, f.logger), req.Field).Info("facet computed",
		"method", req.Method,
		"partitions", partitions,
		"entries", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return entries, nil
}

// prepare validates req against the snapshot schema and fills in defaults.
func (f *Faceter) prepare(snap *index.Snapshot, req Request) (index.FieldInfo, Request, error) {
	info, ok := snap.Schema().Field(req.Field)
	if !ok {
		return info, req, apperrors.InputError(req.Field, "unknown field")
	}
	if req.Offset < 0 {
		return info, req, apperrors.InputError(req.Field, "offset must be >= 0, got %d", req.Offset)
	}
	if f.opts.MaxLimit > 0 && req.Limit > f.opts.MaxLimit {
		return info, req, apperrors.InputError(req.Field, "limit %d exceeds maximum %d", req.Limit, f.opts.MaxLimit)
	}
	if req.Sort == "" {
		req.Sort, _ = ParseSort("", req.Limit)
	}
	if req.Sort != SortCount && req.Sort != SortIndex {
		return info, req, apperrors.InputError(req.Field, "unknown sort %q", req.Sort)
	}
	if req.Prefix != "" {
		if _, isStr := info.Type.(index.StrField); !isStr {
			return info, req, apperrors.InputError(req.Field, "prefix is only supported on string fields, not %s", info.Type.Name())
		}
	}

	if req.Method == "" {
		req.Method = f.opts.DefaultMethod
		if info.MultiValued {
			req.Method = MethodEnum
		}
	}
	switch req.Method {
	case MethodFC, MethodFCS:
		if info.MultiValued {
			return info, req, apperrors.InputError(req.Field, "method %s requires a single-valued field", req.Method)
		}
		if req.Method == MethodFC {
			req.Threads = 0
		} else if req.Threads == 0 {
			req.Threads = f.opts.Threads
		}
	case MethodEnum:
	default:
		return info, req, apperrors.InputError(req.Field, "unknown method %q", req.Method)
	}
	return info, req, nil
}

func (f *Faceter) compute(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, info index.FieldInfo, req Request) ([]Entry, int, error) {
	var res *mergeResult
	var err error
	switch {
	case req.Limit == 0:
		res = &mergeResult{entries: []Entry{}}
	case req.Method == MethodEnum:
		res, err = f.enumerate(ctx, snap, docs, req, []byte(req.Prefix))
	default:
		res, err = f.parallelMerge(ctx, snap, docs, req, []byte(req.Prefix))
	}
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, 0, len(res.entries)+1)
	for _, e := range res.entries {
		e.Value = info.Type.ToReadable([]byte(e.Value))
		entries = append(entries, e)
	}
	if req.Missing {
		missing := res.missing
		if !res.hasMissing {
			missing, err = missingCount(snap, docs, req.Field, info.MultiValued)
			if err != nil {
				return nil, 0, err
			}
		}
		entries = append(entries, Entry{Count: missing, Missing: true})
	}
	return entries, res.partitions, nil
}

// ComputeFacets computes each request in turn and stops at the first
// failure.
func (f *Faceter) ComputeFacets(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, reqs []Request) ([]FieldResult, error) {
	if docs == nil {
		docs = snap.LiveDocs()
	}
	out := make([]FieldResult, 0, len(reqs))
	for _, req := range reqs {
		entries, err := f.ComputeFieldFacet(ctx, snap, docs, req)
		if err != nil {
			return nil, err
		}
		out = append(out, FieldResult{Field: req.Field, Entries: entries})
	}
	return out, nil
}

// ListedTermCounts returns the exact count among docs of each readable
// value, in the order given. An empty value asks for the missing bucket.
func (f *Faceter) ListedTermCounts(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, field string, values []string) ([]Entry, error) {
	info, ok := snap.Schema().Field(field)
	if !ok {
		return nil, apperrors.InputError(field, "unknown field")
	}
	if docs == nil {
		docs = snap.LiveDocs()
	}
	out := make([]Entry, 0, len(values))
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.ExecutionError(field, err)
		}
		if v == "" {
			missing, err := missingCount(snap, docs, field, info.MultiValued)
			if err != nil {
				return nil, apperrors.ExecutionError(field, err)
			}
			out = append(out, Entry{Count: missing, Missing: true})
			continue
		}
		set, err := snap.TermDocs(field, v)
		if err != nil {
			return nil, apperrors.InputError(field, "value %q: %v", v, err)
		}
		out = append(out, Entry{Value: v, Count: int64(docs.IntersectionSize(set))})
	}
	return out, nil
}

// facetMetrics records onto m, doing nothing when m is nil.
type facetMetrics struct {
	m *metrics.Metrics
}

func (fm facetMetrics) request(method Method, result string, start time.Time) {
	if fm.m == nil {
		return
	}
	fm.m.FacetRequestsTotal.WithLabelValues(string(method), result).Inc()
	if result == "ok" {
		fm.m.FacetLatency.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
	}
}

func (fm facetMetrics) entries(n int) {
	if fm.m != nil {
		fm.m.FacetEntries.Observe(float64(n))
	}
}

func (fm facetMetrics) partitionCounted() {
	if fm.m != nil {
		fm.m.PartitionsCountedTotal.Inc()
	}
}
