// Package workpool runs batches of independent tasks with a per-call
// concurrency limit and hands their results back to the caller as they
// complete.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Limit values understood by Run.
const (
	Synchronous = 0
	Unlimited   = -1
)

type result[T any] struct {
	i int
	v T
}

// Run executes task for every i in [0, n) and calls done for each result on
// the calling goroutine, in completion order.
//
// limit 0 runs every task on the calling goroutine, a negative limit starts
// them all at once, and a positive limit caps how many run concurrently;
// the rest wait for a free slot in submission order.
//
// The first error from a task or from done cancels the context passed to
// outstanding tasks; Run waits for them to return before reporting that
// error.
func Run[T any](ctx context.Context, limit, n int, task func(ctx context.Context, i int) (T, error), done func(i int, v T) error) error {
	if n == 0 {
		return ctx.Err()
	}
	if limit == Synchronous {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := task(ctx, i)
			if err != nil {
				return err
			}
			if err := done(i, v); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make(chan result[T], n)
	finished := make(chan error, 1)
	go func() {
		for i := 0; i < n; i++ {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				v, err := task(gctx, i)
				if err != nil {
					return err
				}
				results <- result[T]{i: i, v: v}
				return nil
			})
		}
		finished <- g.Wait()
	}()

	received := 0
	for received < n {
		select {
		case r := <-results:
			received++
			if err := done(r.i, r.v); err != nil {
				cancel()
				<-finished
				return err
			}
		case err := <-finished:
			if err != nil {
				return err
			}
			// every task has returned, so whatever is left is buffered
			for received < n {
				select {
				case r := <-results:
					received++
					if err := done(r.i, r.v); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
			return nil
		}
	}
	<-finished
	return nil
}
