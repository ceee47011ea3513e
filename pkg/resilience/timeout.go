package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after timeout. fn must
// honour its context; WithTimeout waits for it to return. When the limit
// rather than the parent ended fn, the error names the operation and
// the limit and still matches context.DeadlineExceeded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err == nil || ctx.Err() != nil || !errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out after %v: %w", name, timeout, err)
	}
	return fmt.Errorf("%s: %w after %v: %v", name, context.DeadlineExceeded, timeout, err)
}
