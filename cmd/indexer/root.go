package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

var (
	configPath string
	numShards  int
)

var rootCmd = &cobra.Command{
	Use:          "indexer",
	Short:        "Build and inspect facet segments",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().IntVar(&numShards, "shards", 1, "number of shard directories under indexer.dataDir")
	rootCmd.AddCommand(consumeCmd, loadCmd, inspectCmd)
}

// setup loads the config, configures logging and builds the schema every
// subcommand needs.
func setup() (*config.Config, *index.Schema, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	schema, err := indexer.SchemaFromConfig(cfg.Schema)
	if err != nil {
		return nil, nil, err
	}
	return cfg, schema, nil
}

// writer bundles the router with what its flushes report to.
type writer struct {
	router    *shard.Router
	collector *analytics.BatchCollector
	stop      context.CancelFunc
	complete  *kafka.Producer
	inflight  sync.WaitGroup
	producers []*kafka.Producer
}

// openWriter builds the shard router. Every flush is tracked as an
// analytics event and announced on the index-complete topic so shard nodes
// and operators can follow progress.
func openWriter(ctx context.Context, cfg *config.Config, schema *index.Schema, m *metrics.Metrics) (*writer, error) {
	w := &writer{stop: func() {}}
	if cfg.Analytics.Enabled {
		// The collector outlives ctx so the shards' final flushes are
		// still reported; Close stops it.
		var collectorCtx context.Context
		collectorCtx, w.stop = context.WithCancel(context.WithoutCancel(ctx))
		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FacetEvents)
		w.producers = append(w.producers, events)
		w.collector = analytics.NewBatchCollector(events, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		w.collector.Start(collectorCtx)
	}
	if cfg.Kafka.Topics.IndexComplete != "" {
		w.complete = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		w.producers = append(w.producers, w.complete)
	}

	router, err := shard.NewRouter(cfg.Indexer, schema, numShards, func(shardID int) indexer.Options {
		return indexer.Options{
			Metrics: m,
			OnFlush: func(ev analytics.IndexEvent) {
				w.collector.TrackIndex(ev)
				w.announce(shardID, ev)
			},
		}
	})
	if err != nil {
		w.stop()
		w.closeProducers()
		return nil, err
	}
	w.router = router
	return w, nil
}

// announce publishes the flush without holding up the engine, which calls
// OnFlush under its lock.
func (w *writer) announce(shardID int, ev analytics.IndexEvent) {
	if w.complete == nil {
		return
	}
	event := proto.IndexCompleteEvent{
		Shard:     shardID,
		Segment:   ev.Segment,
		Docs:      ev.Docs,
		Deleted:   ev.Deleted,
		FlushedAt: time.Now().UTC().Format(time.RFC3339),
	}
	w.inflight.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		key := fmt.Sprintf("shard-%d", shardID)
		if err := w.complete.Publish(ctx, kafka.Event{Key: key, Value: event}); err != nil {
			slog.Warn("index-complete event not published", "shard_id", shardID, "segment", ev.Segment, "error", err)
		}
	})
}

// Close flushes and closes every shard, then the producers.
func (w *writer) Close() error {
	err := w.router.Close()
	w.stop()
	if w.collector != nil {
		w.collector.Close()
	}
	w.inflight.Wait()
	w.closeProducers()
	return err
}

func (w *writer) closeProducers() {
	for _, p := range w.producers {
		if err := p.Close(); err != nil {
			slog.Error("closing producer", "error", err)
		}
	}
}
