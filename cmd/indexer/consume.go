package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Index document events from the ingest topic until interrupted",
	RunE:  runConsume,
}

func runConsume(cmd *cobra.Command, args []string) error {
	cfg, schema, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	w, err := openWriter(ctx, cfg, schema, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("closing shards", "error", err)
		}
	}()

	for _, engine := range w.router.GetAllEngines() {
		engine.StartFlushLoop(ctx)
	}

	kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(w.router))
	defer kc.Close()

	slog.Info("indexer consuming",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"shards", w.router.NumShards(),
		"data_dir", cfg.Indexer.DataDir,
	)
	if err := consumer.New(kc).Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consuming %s: %w", cfg.Kafka.Topics.DocumentIngest, err)
	}
	slog.Info("indexer stopped")
	return nil
}
