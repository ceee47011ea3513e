package facet

import (
	"bytes"
	"container/heap"
	"context"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/workpool"
)

// segmentQueue orders segment cursors by their current value.
type segmentQueue []*segmentCounts

func (q segmentQueue) Len() int { return len(q) }
func (q segmentQueue) Less(i, j int) bool {
	return bytes.Compare(q[i].value(), q[j].value()) < 0
}
func (q segmentQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *segmentQueue) Push(x any) {
	*q = append(*q, x.(*segmentCounts))
}

func (q *segmentQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// mergeResult is what a merge produces before values are made readable.
type mergeResult struct {
	entries []Entry
	// missing is valid only when hasMissing is set; otherwise the caller
	// computes it separately.
	missing    int64
	hasMissing bool
	partitions int
}

// parallelMerge counts every segment of snap on a worker pool and merges
// the per-segment counts in value order into the request's collector.
func (f *Faceter) parallelMerge(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, req Request, prefix []byte) (*mergeResult, error) {
	leaves := snap.Leaves()
	collector := newCollector(req)
	skipZero := req.Mincount > 0
	log := f.logger.With("field", req.Field)

	res := &mergeResult{hasMissing: true, partitions: len(leaves)}
	queue := make(segmentQueue, 0, len(leaves))

	// The queue is built on this goroutine as segments complete; the order
	// in which they arrive does not affect the merge.
	err := workpool.Run(ctx, req.Threads, len(leaves),
		func(ctx context.Context, i int) (*segmentCounts, error) {
			return countSegment(ctx, leaves[i], req.Field, prefix, docs)
		},
		func(i int, sc *segmentCounts) error {
			f.metrics.partitionCounted()
			log.Debug("segment counted",
				"segment", leaves[i].Segment.Name(),
				"ords", len(sc.counts),
			)
			if m, ok := sc.missing(); ok {
				res.missing += m
			} else {
				res.hasMissing = false
			}
			if sc.first(skipZero) {
				queue = append(queue, sc)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	heap.Init(&queue)
	for queue.Len() > 0 {
		value := queue[0].value()
		var count int64
		for queue.Len() > 0 && bytes.Equal(queue[0].value(), value) {
			sc := queue[0]
			count += sc.count()
			if sc.next(skipZero) {
				heap.Fix(&queue, 0)
			} else {
				heap.Pop(&queue)
			}
		}
		if collector.Collect(value, count) {
			break
		}
	}
	res.entries = collector.Results()
	return res, nil
}
