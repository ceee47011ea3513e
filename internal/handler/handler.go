// Package handler exposes facet counting over HTTP. The same handler
// fronts a single shard node and the coordinator; only the Counter behind
// it differs.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facetcache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

type Counter interface {
	Count(ctx context.Context, req *proto.FacetCountRequest) (*proto.FacetCountResponse, error)
}

type Handler struct {
	counter      Counter
	cache        *facetcache.Cache
	collector    *analytics.BatchCollector
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New returns a handler over counter. cache and collector may be nil.
func New(counter Counter, cache *facetcache.Cache, collector *analytics.BatchCollector, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		counter:      counter,
		cache:        cache,
		collector:    collector,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "facet-handler"),
	}
}

// Facet serves GET /api/v1/facet/{field}.
func (h *Handler) Facet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := ParseQuery(r.PathValue("field"), r.URL.Query(), h.defaultLimit, h.maxLimit)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	resp, err := h.counter.Count(ctx, req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("facet request failed", "field", req.Field, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	log.Info("facet served",
		"field", req.Field,
		"entries", len(resp.Entries),
		"cache_hit", resp.CacheHit,
		"failed_shards", len(resp.FailedShards),
		"latency_ms", resp.LatencyMs,
	)
	h.collector.TrackFacet(analytics.FacetEvent{
		Field:        req.Field,
		Method:       req.Method,
		Sort:         req.Sort,
		Entries:      len(resp.Entries),
		Shards:       resp.Shards,
		FailedShards: len(resp.FailedShards),
		Refined:      resp.Refined,
		CacheHit:     resp.CacheHit,
		LatencyMs:    resp.LatencyMs,
		RequestID:    middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ParseQuery builds a count request from URL parameters: offset, limit,
// mincount, missing, sort, prefix, method, threads and fq=field:value. A negative
// limit asks for every value; larger limits are capped at maxLimit.
func ParseQuery(field string, q url.Values, defaultLimit, maxLimit int) (*proto.FacetCountRequest, error) {
	if field == "" {
		return nil, apperrors.InputError("", "field is required")
	}
	req := &proto.FacetCountRequest{
		Field:  field,
		Limit:  defaultLimit,
		Sort:   q.Get("sort"),
		Prefix: q.Get("prefix"),
		Method: q.Get("method"),
	}

	var err error
	if req.Offset, err = intParam(q, "offset", 0); err != nil {
		return nil, apperrors.InputError(field, "%v", err)
	}
	if req.Offset < 0 {
		return nil, apperrors.InputError(field, "offset must be >= 0")
	}
	if req.Limit, err = intParam(q, "limit", defaultLimit); err != nil {
		return nil, apperrors.InputError(field, "%v", err)
	}
	if req.Limit < 0 {
		req.Limit = -1
	} else if maxLimit > 0 && req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Mincount, err = intParam(q, "mincount", 0); err != nil {
		return nil, apperrors.InputError(field, "%v", err)
	}
	if req.Threads, err = intParam(q, "threads", 0); err != nil {
		return nil, apperrors.InputError(field, "%v", err)
	}
	if v := q.Get("missing"); v != "" {
		if req.Missing, err = strconv.ParseBool(v); err != nil {
			return nil, apperrors.InputError(field, "missing must be a boolean")
		}
	}
	if fq := q.Get("fq"); fq != "" {
		f, v, ok := strings.Cut(fq, ":")
		if !ok || f == "" {
			return nil, apperrors.InputError(field, "fq must be field:value, got %q", fq)
		}
		req.Filter = &proto.TermFilter{Field: f, Value: v}
	}
	return req, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
