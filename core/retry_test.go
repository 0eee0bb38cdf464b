package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, delay time.Duration) error {
	r.delays = append(r.delays, delay)
	return nil
}

func TestRetryRead_RetriesMissingValueUntilFound(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := ReadRetryPolicy{MaxAttempts: 3, Backoff: 250 * time.Millisecond}
	calls := 0
	value, attempts, err := retryRead(context.Background(), policy, sleeper.sleep, OpRefetchItemAfterCheckIn,
		func(context.Context) (string, bool, error) {
			calls++
			return "item", calls == 3, nil
		})
	if err != nil {
		t.Fatalf("retry read: %v", err)
	}
	if value != "item" || attempts != 3 {
		t.Fatalf("expected value on third attempt, got %q after %d", value, attempts)
	}
	if len(sleeper.delays) != 2 || sleeper.delays[0] != 250*time.Millisecond {
		t.Fatalf("expected two fixed backoffs, got %v", sleeper.delays)
	}
}

func TestRetryRead_RetriesAllowListedUpstreamStatus(t *testing.T) {
	policy := ReadRetryPolicy{MaxAttempts: 2, RetryableStatusCodes: []int{409}}
	calls := 0
	_, attempts, err := retryRead(context.Background(), policy, (&recordingSleeper{}).sleep, OpRefetchLoanAfterCheckOut,
		func(context.Context) (Loan, bool, error) {
			calls++
			if calls == 1 {
				return Loan{}, false, &UpstreamError{Operation: "find_loan", StatusCode: 409}
			}
			return Loan{ID: "loan-1"}, true, nil
		})
	if err != nil || attempts != 2 {
		t.Fatalf("expected success on retry, got attempts=%d err=%v", attempts, err)
	}
}

func TestRetryRead_FailsFastOnOtherErrors(t *testing.T) {
	policy := ReadRetryPolicy{MaxAttempts: 5, RetryableStatusCodes: []int{404}}
	cause := &UpstreamError{Operation: "find_loan", StatusCode: 500}
	_, attempts, err := retryRead(context.Background(), policy, (&recordingSleeper{}).sleep, OpRefetchLoanAfterRenew,
		func(context.Context) (Loan, bool, error) {
			return Loan{}, false, cause
		})
	if !errors.Is(err, cause) || attempts != 1 {
		t.Fatalf("expected single failing attempt, got attempts=%d err=%v", attempts, err)
	}
}

func TestRetryRead_ExhaustionReportsNotFound(t *testing.T) {
	policy := ReadRetryPolicy{MaxAttempts: 2}
	_, attempts, err := retryRead(context.Background(), policy, (&recordingSleeper{}).sleep, OpRefetchItemAfterCheckIn,
		func(context.Context) (InventoryItem, bool, error) {
			return InventoryItem{}, false, nil
		})
	if !errors.Is(err, ErrNotFound) || attempts != 2 {
		t.Fatalf("expected not found after two attempts, got attempts=%d err=%v", attempts, err)
	}
}

func TestRetryRead_StopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := ReadRetryPolicy{MaxAttempts: 3, Backoff: time.Second}
	_, _, err := retryRead(ctx, policy, contextSleep, OpRefetchItemAfterCheckIn,
		func(context.Context) (InventoryItem, bool, error) {
			return InventoryItem{}, false, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestBorrowerOpenRetriesRefetchAfterCheckIn(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if _, err := env.svc.CreateTransaction(ctx, "tx-retry", borrowerRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	env.gateway.findItemMisses = 2
	if _, err := env.svc.RequestStatusChange(ctx, "tx-retry", StatusOpen); err != nil {
		t.Fatalf("expected lagging read to be retried, got %v", err)
	}

	env = newTestEnv(t)
	if _, err := env.svc.CreateTransaction(ctx, "tx-retry", borrowerRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	env.gateway.findItemMisses = 3
	if _, err := env.svc.RequestStatusChange(ctx, "tx-retry", StatusOpen); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected exhausted retries to fail, got %v", err)
	}
	stored, _ := env.store.Get(ctx, "tx-retry")
	if stored.Status != StatusCreated {
		t.Fatalf("expected status unchanged, got %s", stored.Status)
	}
}
