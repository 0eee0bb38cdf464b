package core

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Read-after-write operations allowed to retry. Every other gateway call is
// attempted once.
const (
	OpRefetchItemAfterCheckIn  = "refetch_item_after_check_in"
	OpRefetchLoanAfterCheckOut = "refetch_loan_after_check_out"
	OpRefetchLoanAfterRenew    = "refetch_loan_after_renew"
)

// ReadRetryPolicy bounds read-after-write retries with a fixed backoff.
type ReadRetryPolicy struct {
	MaxAttempts          int
	Backoff              time.Duration
	RetryableStatusCodes []int
}

func (p ReadRetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Retryable reports whether err carries an upstream status in the allow-list.
func (p ReadRetryPolicy) Retryable(err error) bool {
	code, ok := UpstreamStatusCode(err)
	if !ok {
		return false
	}
	return slices.Contains(p.RetryableStatusCodes, code)
}

// retryRead calls fetch until it reports a found value. A missing value and
// allow-listed upstream failures are retried; anything else fails at once.
func retryRead[T any](
	ctx context.Context,
	policy ReadRetryPolicy,
	sleep Sleeper,
	operation string,
	fetch func(ctx context.Context) (T, bool, error),
) (T, int, error) {
	var zero T
	if sleep == nil {
		sleep = contextSleep
	}
	var lastErr error
	attempts := policy.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		value, found, err := fetch(ctx)
		switch {
		case err == nil && found:
			return value, attempt, nil
		case err == nil:
			lastErr = fmt.Errorf("%w: %s returned no record", ErrNotFound, operation)
		case policy.Retryable(err):
			lastErr = err
		default:
			return zero, attempt, err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleep(ctx, policy.Backoff); sleepErr != nil {
			return zero, attempt, sleepErr
		}
	}
	return zero, attempts, fmt.Errorf("core: %s exhausted %d attempts: %w", operation, attempts, lastErr)
}
