package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const indexPage = `<html><body><h1>Facet Engine Metrics</h1>
<ul>
<li><a href="/metrics">/metrics</a> Prometheus exposition</li>
<li><code>facet_*</code> requests, latency, partitions, refinements and cache hit rates</li>
<li><code>shard_requests_total</code>, <code>circuit_breaker_state</code> coordinator fan-out</li>
<li><code>docs_*</code>, <code>index_flushes_total</code>, <code>segments_loaded</code> indexing</li>
</ul></body></html>`

// NewMux serves /metrics and a short index of the metric families. Other
// paths are 404 so scrapers pointed at the wrong path fail loudly.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexPage)
	})
	return mux
}

// StartServer serves NewMux on port in the background.
func StartServer(port int) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
