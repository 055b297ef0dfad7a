package build

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"atom/internal/logging"
	"atom/internal/target"
)

// WithRetry wraps task so that it is attempted up to attempts times, waiting
// delay between attempts. Retrying is opt-in per task; the executor itself
// never retries. A [CheckFailedError] ends the loop immediately, and
// cancelling ctx stops the wait with ctx.Err().
func WithRetry(task target.Task, attempts int, delay time.Duration) target.Task {
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) error {
		attempt := 0
		op := func() error {
			attempt++
			err := task(ctx)
			var check *CheckFailedError
			if errors.As(err, &check) {
				return backoff.Permanent(err)
			}
			return err
		}

		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
			ctx,
		)
		return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
			logging.FromContext(ctx).Warn("task failed, retrying",
				zap.Int("attempt", attempt), zap.Int("attempts", attempts),
				zap.Duration("delay", wait), zap.Error(err))
		})
	}
}
