// Command analytics aggregates facet and index-flush events.
//
// It consumes the facet-events topic into an in-memory aggregator (request
// counts, latency percentiles, cache hit rate, refinement and shard failure
// rates, top fields), snapshots the totals to PostgreSQL and serves them at
// GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FacetEvents, analytics.HandleEvent(aggregator))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.FacetEvents)

	// Snapshots are best effort: the service still aggregates without a
	// database and reports itself degraded.
	var store *analytics.Store
	var db health.Pinger
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		db = pg
		store = analytics.NewStore(pg.DB)
		store.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	analyticsHandler := analytics.NewHandler(aggregator, store)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck("postgres", db, 2*time.Second, true))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/latest", analyticsHandler.Latest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
