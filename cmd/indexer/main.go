// Command indexer builds facet segments. It consumes document events from
// Kafka, bulk loads documents from PostgreSQL, and inspects the segment
// directories it writes.
//
// Usage:
//
//	go run ./cmd/indexer consume [--config configs/development.yaml] [--shards 4]
//	go run ./cmd/indexer load [--query "SELECT ..."]
//	go run ./cmd/indexer inspect --field color
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
