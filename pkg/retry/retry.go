// Package retry wraps a single handler invocation with bounded retry and
// fixed or exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

const (
	defaultAttempts = 3
	defaultDelayMs  = 1000
)

// DefaultPolicy is applied when an action carries no retry config.
func DefaultPolicy() models.RetryConfig {
	return models.RetryConfig{
		Attempts: defaultAttempts,
		Backoff: models.BackoffConfig{
			Kind:    models.BackoffFixed,
			DelayMs: defaultDelayMs,
		},
	}
}

// Operation is the bound handler call being retried.
type Operation func(ctx context.Context) (any, error)

// OnFailure is invoked after each failed attempt that will be retried,
// before the backoff sleep. retryCount is the number of failures so far.
// The engine uses it to persist the intermediate step state.
type OnFailure func(ctx context.Context, retryCount int, err error) error

// Do runs op under the given policy. It returns the output, the number of
// retries actually used, and the last error once attempts are exhausted.
// The backoff sleep blocks only the calling goroutine and honors ctx
// cancellation.
func Do(ctx context.Context, logger *slog.Logger, policy *models.RetryConfig, op Operation, onFailure OnFailure) (any, int, error) {
	effective := DefaultPolicy()
	if policy != nil {
		effective = *policy
	}

	if effective.Attempts < 1 {
		effective.Attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= effective.Attempts; attempt++ {
		output, err := op(ctx)
		if err == nil {
			return output, attempt - 1, nil
		}

		lastErr = err

		if attempt == effective.Attempts {
			break
		}

		retryCount := attempt

		logger.WarnContext(ctx, "Attempt failed, retrying",
			"attempt", attempt,
			"attempts", effective.Attempts,
			"error", err)

		if onFailure != nil {
			if hookErr := onFailure(ctx, retryCount, err); hookErr != nil {
				return nil, retryCount, fmt.Errorf("failed to record retry state: %w", hookErr)
			}
		}

		if err := sleep(ctx, effective.Delay(retryCount)); err != nil {
			return nil, retryCount, err
		}
	}

	return nil, effective.Attempts - 1, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
