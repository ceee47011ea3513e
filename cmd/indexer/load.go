package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/postgres"
)

var loadQuery string

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk load documents from PostgreSQL into new segments",
	Long: `Load streams (id, field, value) rows ordered by id from PostgreSQL,
routes each document to its shard and flushes every shard when done.
The query defaults to postgres.documentQuery from the config.`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadQuery, "query", "", "override the configured document query")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, schema, err := setup()
	if err != nil {
		return err
	}
	query := cfg.Postgres.DocumentQuery
	if loadQuery != "" {
		query = loadQuery
	}
	if query == "" {
		return errors.New("no document query: set postgres.documentQuery or pass --query")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := openWriter(ctx, cfg, schema, nil)
	if err != nil {
		return err
	}

	stats, loadErr := consumer.Load(ctx, db, query, w.router)
	// Whatever was read before a failure is still flushed.
	if err := w.Close(); err != nil && loadErr == nil {
		loadErr = err
	}
	if loadErr != nil {
		return fmt.Errorf("loading documents: %w", loadErr)
	}
	slog.Info("load complete",
		"rows", stats.Rows,
		"docs", stats.Docs,
		"rejected", stats.Rejected,
		"duration", stats.Duration,
		"shards", w.router.NumShards(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d docs from %d rows (%d rejected)\n", stats.Docs, stats.Rows, stats.Rejected)
	return nil
}
