// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents (and
// /api/v1/documents/batch), validates them against the index schema and
// publishes them to the ingest topic for the indexer. Deletes arrive as
// DELETE /api/v1/documents/{id}.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-shards 4]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	numShards := flag.Int("shards", 1, "number of index shards, used to report document placement")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	schema, err := indexer.SchemaFromConfig(cfg.Schema)
	if err != nil {
		slog.Error("invalid schema", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	h := handler.New(publisher.New(producer, *numShards), schema)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IngestBatch)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	mux.HandleFunc("GET /health", h.Health)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
