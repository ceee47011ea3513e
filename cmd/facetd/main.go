// Command facetd serves one index shard. It keeps the shard's segment
// directory loaded, answers the coordinator's Count, Refine and Stats RPCs
// and exposes the same facet counts over HTTP.
//
// Usage:
//
//	go run ./cmd/facetd [-config configs/development.yaml] [-shard 0 -shards 1]
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
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facetcache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/node"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	shardID := flag.Int("shard", 0, "shard served by this node")
	numShards := flag.Int("shards", 1, "total number of shards")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	nodeID := fmt.Sprintf("shard-%d", *shardID)
	slog.Info("starting facet node", "node", nodeID, "port", cfg.Server.Port, "rpc_port", cfg.RPC.Port)

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
	dataDir := shard.Dir(cfg.Indexer.DataDir, *shardID, *numShards)
	dir, err := indexer.OpenDirectory(dataDir, schema, m)
	if err != nil {
		slog.Error("failed to open index directory", "dir", dataDir, "error", err)
		os.Exit(1)
	}
	defer dir.Close()

	filterCache, err := facet.NewFilterCache(cfg.Facet.FilterCacheSize, m)
	if err != nil {
		slog.Error("failed to create filter cache", "error", err)
		os.Exit(1)
	}
	watcher := indexer.NewWatcher(dir, indexer.DefaultDebounce, cfg.Indexer.ReloadInterval, func(snap *index.Snapshot) {
		// Entries are keyed by generation; older ones can never hit again.
		filterCache.Purge()
		slog.Info("snapshot reloaded", "generation", snap.Generation(), "docs", snap.NumDocs())
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Error("index watcher stopped", "error", err)
		}
	}()

	var cache *facetcache.Cache
	var redisPinger health.Pinger
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, facet caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			redisPinger = redisClient
			cache = facetcache.New(redisClient, nodeID, cfg.Redis.CacheTTL, m)
			slog.Info("facet cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	method, _ := facet.ParseMethod(cfg.Facet.DefaultMethod)
	faceter := facet.New(facet.Options{
		Threads:        cfg.Facet.Threads,
		EnumCacheMinDF: cfg.Facet.EnumCacheMinDF,
		MaxLimit:       cfg.Facet.MaxLimit,
		DefaultMethod:  method,
		Cache:          filterCache,
		Metrics:        m,
		Tracer:         tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate, nil),
	})
	svc := node.NewService(dir, faceter, cache)

	rpcServer := grpc.NewServer()
	svc.Register(rpcServer)
	go func() {
		if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
			slog.Error("rpc server error", "error", err)
			stop()
		}
	}()
	defer rpcServer.Stop()

	var collector *analytics.BatchCollector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FacetEvents)
		defer producer.Close()
		collector = analytics.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
	}

	checker := health.NewChecker()
	checker.Register("index", health.SnapshotCheck(func() (int, int) {
		snap := dir.Snapshot()
		return snap.NumDocs(), len(snap.Leaves())
	}))
	checker.Register("redis", health.PingCheck("redis", redisPinger, 2*time.Second, true))

	h := handler.New(svc, cache, collector, cfg.Facet.DefaultLimit, cfg.Facet.MaxLimit)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/facet/{field}", h.Facet)
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Stats(r.Context()))
	})
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
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

	slog.Info("facet node listening", "addr", server.Addr, "data_dir", dataDir)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("facet node stopped")
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
