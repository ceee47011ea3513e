package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/kafka"
)

// Publisher is the part of kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector accumulates events and flushes them to Kafka either when
// the batch reaches a configurable size or after a time interval. Track
// never blocks on the broker.
type BatchCollector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	flushMu       sync.Mutex
	logger        *slog.Logger
	done          chan struct{}
}

// NewBatchCollector creates a BatchCollector that flushes when the buffer
// reaches batchSize events or after flushInterval, whichever comes first.
func NewBatchCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 3,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop; it returns immediately. The
// loop performs a final flush and exits when ctx is cancelled.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				bc.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// TrackFacet queues a facet event keyed by field, so one field's events
// stay on one partition.
func (bc *BatchCollector) TrackFacet(ev FacetEvent) {
	ev.Type = EventFacet
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	bc.track(ev.Field, ev)
}

// TrackIndex queues a flush event keyed by segment name.
func (bc *BatchCollector) TrackIndex(ev IndexEvent) {
	ev.Type = EventIndexFlush
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	bc.track(ev.Segment, ev)
}

func (bc *BatchCollector) track(key string, value any) {
	if bc == nil {
		return
	}
	bc.mu.Lock()
	if len(bc.buffer) >= bc.maxBuffered {
		bc.mu.Unlock()
		bc.logger.Warn("analytics event dropped (buffer full)", "key", key)
		return
	}
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	shouldFlush := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if shouldFlush {
		go bc.Flush(context.Background())
	}
}

// Close waits for the background flush loop to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen returns the current number of buffered events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Flush publishes everything buffered. A failed batch is put back in front
// of newer events, trimmed to the buffer bound.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if len(bc.buffer) > bc.maxBuffered {
			dropped := len(bc.buffer) - bc.maxBuffered
			bc.buffer = bc.buffer[:bc.maxBuffered]
			bc.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		bc.mu.Unlock()
		return
	}

	bc.logger.Debug("batch flushed", "events", len(batch))
}
