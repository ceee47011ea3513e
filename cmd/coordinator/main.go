// Command coordinator answers facet requests across every shard node. It
// fans each request out over RPC, refines the merged counts and serves the
// result over HTTP together with index statistics and shard health.
//
// Usage:
//
//	go run ./cmd/coordinator [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/coordinator"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if len(cfg.Coordinator.Shards) == 0 {
		slog.Error("no shards configured (coordinator.shards or FE_COORDINATOR_SHARDS)")
		os.Exit(1)
	}
	slog.Info("starting coordinator", "port", cfg.Server.Port, "shards", cfg.Coordinator.Shards)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	schema, err := indexer.SchemaFromConfig(cfg.Schema)
	if err != nil {
		slog.Error("invalid schema", "error", err)
		os.Exit(1)
	}

	cc := cfg.Coordinator
	coord := coordinator.Dial(cc.Shards, coordinator.Options{
		ShardTimeout:     cc.ShardTimeout,
		OverrequestRatio: cc.Overrequest.Ratio,
		OverrequestCount: cc.Overrequest.Count,
		ShardMaxLimit:    cfg.Facet.MaxLimit,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cc.Retry.MaxAttempts,
			InitialDelay: cc.Retry.InitialDelay,
			MaxDelay:     cc.Retry.MaxDelay,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:    cc.Breaker.FailureThreshold,
			ResetTimeout:        cc.Breaker.ResetTimeout,
			HalfOpenMaxRequests: cc.Breaker.HalfOpenMaxRequests,
		},
		Schema:  schema,
		Metrics: m,
	})
	defer coord.Close()

	var collector *analytics.BatchCollector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FacetEvents)
		defer producer.Close()
		collector = analytics.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.FacetEvents)
	}

	checker := health.NewChecker()
	checker.Register("shards", func(ctx context.Context) health.ComponentHealth {
		var open []string
		for addr, state := range coord.BreakerStates() {
			if state != resilience.StateClosed.String() {
				open = append(open, addr)
			}
		}
		switch {
		case len(open) == coord.NumShards():
			return health.ComponentHealth{Status: health.StatusDown, Message: "every shard circuit is open"}
		case len(open) > 0:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("open circuits: %v", open)}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d shards", coord.NumShards())}
	})

	h := handler.New(coord, nil, collector, cfg.Facet.DefaultLimit, cfg.Facet.MaxLimit)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/facet/{field}", h.Facet)
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, failed := coord.Stats(r.Context())
		writeJSON(w, map[string]any{
			"index":         stats,
			"failed_shards": failed,
			"circuits":      coord.BreakerStates(),
		})
	})
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute)
		go limiter.SweepLoop(ctx, time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("coordinator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("coordinator stopped")
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
