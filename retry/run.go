package retry

import (
	"context"
	"time"

	"github.com/veritas-eu/orchestrator-core/core"
)

// Do runs fn, retrying per policy until it succeeds, fn returns a
// permanent/non-transient error, the retry budget is exhausted, or ctx is
// cancelled. attempts(s) <= max_retries(s) + 1 is maintained by looping
// exactly maxRetries+1 times.
func Do(ctx context.Context, policy core.RetryConfig, maxRetries int, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		select {
		case <-ctx.Done():
			return core.NewCoreError("retry.Do", core.KindCancelled, core.ErrCancelled)
		default:
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if core.IsCancelled(lastErr) {
			return lastErr
		}
		if !ShouldRetry(attempt, maxRetries+1, lastErr) {
			return lastErr
		}

		delay := Delay(attempt, policy)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return core.NewCoreError("retry.Do", core.KindCancelled, core.ErrCancelled)
		case <-timer.C:
		}
	}
	return core.NewCoreError("retry.Do", core.KindTransient, core.ErrMaxRetriesExceeded)
}
