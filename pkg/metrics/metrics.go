// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	FacetRequestsTotal     *prometheus.CounterVec
	FacetLatency           *prometheus.HistogramVec
	FacetEntries           prometheus.Histogram
	PartitionsCountedTotal prometheus.Counter
	RefinementsTotal       *prometheus.CounterVec
	FilterCacheHitsTotal   prometheus.Counter
	FilterCacheMissesTotal prometheus.Counter
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	DocsIndexedTotal       prometheus.Counter
	DocsDeletedTotal       prometheus.Counter
	IndexFlushesTotal      *prometheus.CounterVec
	SegmentsLoaded         prometheus.Gauge
	ShardRequestsTotal     *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FacetRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_requests_total",
				Help: "Facet computations by method and result (ok, input_error, error, interrupted).",
			},
			[]string{"method", "result"},
		),
		FacetLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facet_latency_seconds",
				Help:    "Facet computation latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method"},
		),
		FacetEntries: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "facet_entries",
				Help:    "Number of entries returned per facet computation.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		PartitionsCountedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_partitions_counted_total",
				Help: "Total per-partition counting tasks completed.",
			},
		),
		RefinementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_refinements_total",
				Help: "Distributed facet merges by outcome (exact, refined).",
			},
			[]string{"outcome"},
		),
		FilterCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_filter_cache_hits_total",
				Help: "Per-value document set cache hits during enumeration.",
			},
		),
		FilterCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_filter_cache_misses_total",
				Help: "Per-value document set cache misses during enumeration.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_hits_total",
				Help: "Total number of facet result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_misses_total",
				Help: "Total number of facet result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_deleted_total",
				Help: "Total documents marked deleted.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		SegmentsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "segments_loaded",
				Help: "Number of segments in the current snapshot.",
			},
		),
		ShardRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_requests_total",
				Help: "Shard RPCs issued by the coordinator by phase and status.",
			},
			[]string{"phase", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FacetRequestsTotal,
		m.FacetLatency,
		m.FacetEntries,
		m.PartitionsCountedTotal,
		m.RefinementsTotal,
		m.FilterCacheHitsTotal,
		m.FilterCacheMissesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.IndexFlushesTotal,
		m.SegmentsLoaded,
		m.ShardRequestsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
