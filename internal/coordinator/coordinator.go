// Package coordinator answers facet requests over several shard nodes. It
// over-requests every shard, merges the responses with shardfacet, asks
// shards for the exact counts of values they did not report and returns
// the merged ranking.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/node"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/shardfacet"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/resilience"
)

// ShardClient is the RPC surface of one shard node; *grpc.Client
// satisfies it.
type ShardClient interface {
	Call(ctx context.Context, method string, params any, result any) error
	Addr() string
	Close() error
}

type Options struct {
	// ShardTimeout bounds every shard call. 0 leaves calls bounded only by
	// the request context.
	ShardTimeout     time.Duration
	OverrequestRatio float64
	OverrequestCount int
	// ShardMaxLimit is the largest limit the shard nodes accept. 0 means
	// they accept any.
	ShardMaxLimit int
	Retry            resilience.RetryConfig
	Breaker          resilience.CircuitBreakerConfig
	// Schema supplies field types so that merged values sort the way a
	// single index sorts them. Fields it does not know sort as strings.
	Schema  *index.Schema
	Metrics *metrics.Metrics
}

type shardConn struct {
	client  ShardClient
	breaker *resilience.CircuitBreaker
}

type Coordinator struct {
	shards  []shardConn
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New wraps each client in its own circuit breaker. Shard i of every
// merge is clients[i].
func New(clients []ShardClient, opts Options) *Coordinator {
	if opts.OverrequestRatio < 1 {
		opts.OverrequestRatio = 1
	}
	c := &Coordinator{
		shards:  make([]shardConn, len(clients)),
		opts:    opts,
		metrics: opts.Metrics,
		logger:  logger.WithComponent("coordinator"),
	}

	breakerCfg := opts.Breaker
	breakerCfg.IsFailure = isShardFailure
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		if c.metrics != nil {
			c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	for i, client := range clients {
		c.shards[i] = shardConn{
			client:  client,
			breaker: resilience.NewCircuitBreaker(client.Addr(), breakerCfg),
		}
	}

	c.opts.Retry.Retryable = func(err error) bool {
		return isShardFailure(err) && !errors.Is(err, resilience.ErrCircuitOpen)
	}
	return c
}

// Dial builds a Coordinator over lazily connecting clients, so shards that
// are down at startup only fail the requests that reach them.
func Dial(addrs []string, opts Options) *Coordinator {
	clients := make([]ShardClient, len(addrs))
	for i, addr := range addrs {
		clients[i] = grpc.NewClient(addr)
	}
	return New(clients, opts)
}

// isShardFailure excludes errors the shard is not to blame for.
func isShardFailure(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidInput) && !errors.Is(err, context.Canceled)
}

func (c *Coordinator) NumShards() int { return len(c.shards) }

// Count runs the two-phase distributed facet: an over-requested count on
// every shard, then refinement of the values whose merged counts could
// still be short. Failed shards are left out of the merge and listed in
// the response. An input error from any shard fails the request.
func (c *Coordinator) Count(ctx context.Context, req *proto.FacetCountRequest) (*proto.FacetCountResponse, error) {
	fr, err := node.RequestFromProto(req)
	if err != nil {
		return nil, err
	}
	if fr.Offset < 0 {
		return nil, apperrors.InputError(fr.Field, "offset must be >= 0, got %d", fr.Offset)
	}
	if fr.Limit < 0 {
		fr.Limit = -1
	}
	if len(c.shards) == 0 {
		return nil, fmt.Errorf("no shards configured: %w", apperrors.ErrShardUnavailable)
	}
	log := logger.WithField(logger.Contextual(ctx, c.logger), fr.Field)

	params := shardfacet.NewParams(fr)
	sr := params.ShardRequest(c.opts.OverrequestRatio, c.opts.OverrequestCount, c.opts.ShardMaxLimit)
	shardReq := &proto.FacetCountRequest{
		Field:    fr.Field,
		Limit:    sr.Limit,
		Mincount: sr.Mincount,
		Missing:  fr.Missing,
		Sort:     string(params.Sort),
		Prefix:   fr.Prefix,
		Method:   string(fr.Method),
		Threads:  fr.Threads,
		Filter:   req.Filter,
	}

	var ft index.FieldType
	if c.opts.Schema != nil {
		if info, ok := c.opts.Schema.Field(fr.Field); ok {
			ft = info.Type
		}
	}
	merged := shardfacet.NewField(fr.Field, ft, len(c.shards), params)

	responses, errs := c.countAll(ctx, shardReq)
	var failed []int
	for i, err := range errs {
		if err == nil {
			merged.Add(i, node.EntriesFromProto(responses[i].Entries), sr.Limit)
			continue
		}
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.ExecutionError(fr.Field, ctxErr)
		}
		log.Warn("shard count failed", "shard", i, "addr", c.shards[i].client.Addr(), "error", err)
		merged.Add(i, nil, sr.Limit)
		failed = append(failed, i)
	}
	if len(failed) == len(c.shards) {
		return nil, fmt.Errorf("all %d shards failed: %w: %v", len(c.shards), apperrors.ErrShardUnavailable, errs[0])
	}

	merged.PlanRefinement()
	refined := merged.NeedRefinement()
	if refined {
		refineFailed, err := c.refineAll(ctx, merged, req.Filter)
		if err != nil {
			return nil, err
		}
		failed = appendUnique(failed, refineFailed...)
	}
	c.recordRefinement(refined)

	entries := merged.Result()
	log.Debug("facet merged",
		"shards", len(c.shards),
		"failed", len(failed),
		"terms", merged.NumTerms(),
		"refined", refined,
	)
	return &proto.FacetCountResponse{
		Field:        fr.Field,
		Entries:      node.EntriesToProto(entries),
		Shards:       len(c.shards),
		FailedShards: failed,
		Refined:      refined,
	}, nil
}

func (c *Coordinator) countAll(ctx context.Context, req *proto.FacetCountRequest) ([]*proto.FacetCountResponse, []error) {
	responses := make([]*proto.FacetCountResponse, len(c.shards))
	errs := make([]error, len(c.shards))
	var wg sync.WaitGroup
	for i := range c.shards {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var resp proto.FacetCountResponse
			errs[i] = c.call(ctx, i, "count", proto.MethodFacetCount, req, &resp)
			responses[i] = &resp
		}(i)
	}
	wg.Wait()
	return responses, errs
}

// refineAll sends every shard its refine list in parallel, retrying
// transient failures. A shard whose refinement still fails keeps its
// first-phase contribution and is returned in failed.
func (c *Coordinator) refineAll(ctx context.Context, merged *shardfacet.Field, filter *proto.TermFilter) (failed []int, err error) {
	type result struct {
		entries []proto.FacetEntry
		err     error
	}
	results := make([]*result, len(c.shards))
	var wg sync.WaitGroup
	for i := range c.shards {
		values := merged.RefineList(i)
		if len(values) == 0 {
			continue
		}
		results[i] = &result{}
		wg.Add(1)
		go func(i int, r *result) {
			defer wg.Done()
			req := &proto.FacetRefineRequest{Field: merged.Name(), Values: values, Filter: filter}
			r.err = resilience.Retry(ctx, fmt.Sprintf("refine-shard-%d", i), c.opts.Retry, func() error {
				var resp proto.FacetRefineResponse
				if err := c.call(ctx, i, "refine", proto.MethodFacetRefine, req, &resp); err != nil {
					return err
				}
				r.entries = resp.Entries
				return nil
			})
		}(i, results[i])
	}
	wg.Wait()

	for i, r := range results {
		if r == nil {
			continue
		}
		if r.err != nil {
			if errors.Is(r.err, apperrors.ErrInvalidInput) {
				return nil, r.err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, apperrors.ExecutionError(merged.Name(), ctxErr)
			}
			c.logger.Warn("shard refinement failed", "shard", i, "field", merged.Name(), "error", r.err)
			failed = append(failed, i)
			continue
		}
		merged.AddRefinement(i, node.EntriesFromProto(r.entries))
	}
	return failed, nil
}

// call runs one RPC on shard i behind its breaker and the shard timeout.
func (c *Coordinator) call(ctx context.Context, i int, phase, method string, params, result any) error {
	sc := c.shards[i]
	err := sc.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.opts.ShardTimeout, "shard "+sc.client.Addr(), func(ctx context.Context) error {
			return sc.client.Call(ctx, method, params, result)
		})
	})
	c.recordShardRequest(phase, err)
	return err
}

// Stats sums index statistics over every reachable shard.
func (c *Coordinator) Stats(ctx context.Context) (*proto.StatsResponse, []int) {
	total := &proto.StatsResponse{}
	var failed []int
	fields := make(map[string]struct{})
	for i := range c.shards {
		var resp proto.StatsResponse
		if err := c.call(ctx, i, "stats", proto.MethodIndexStats, &proto.StatsRequest{}, &resp); err != nil {
			c.logger.Warn("shard stats failed", "shard", i, "error", err)
			failed = append(failed, i)
			continue
		}
		total.TotalDocs += resp.TotalDocs
		total.MaxDoc += resp.MaxDoc
		total.TotalSegments += resp.TotalSegments
		for _, f := range resp.Fields {
			if _, ok := fields[f]; !ok {
				fields[f] = struct{}{}
				total.Fields = append(total.Fields, f)
			}
		}
	}
	return total, failed
}

// BreakerStates reports each shard's circuit state by address.
func (c *Coordinator) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.shards))
	for _, sc := range c.shards {
		out[sc.client.Addr()] = sc.breaker.GetState().String()
	}
	return out
}

func (c *Coordinator) Close() error {
	var firstErr error
	for _, sc := range c.shards {
		if err := sc.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Coordinator) recordShardRequest(phase string, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "rejected"
	default:
		status = "error"
	}
	c.metrics.ShardRequestsTotal.WithLabelValues(phase, status).Inc()
}

func (c *Coordinator) recordRefinement(refined bool) {
	if c.metrics == nil {
		return
	}
	outcome := "exact"
	if refined {
		outcome = "refined"
	}
	c.metrics.RefinementsTotal.WithLabelValues(outcome).Inc()
}

func appendUnique(dst []int, vals ...int) []int {
	for _, v := range vals {
		seen := false
		for _, d := range dst {
			if d == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}

var _ ShardClient = (*grpc.Client)(nil)
