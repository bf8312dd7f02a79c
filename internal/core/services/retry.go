package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/logger"
)

// RetryExhaustedError reports an operation that kept failing until the
// policy gave up. Last is the error of the final attempt.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error

	// TimedOut is set when the total timeout, not the attempt cap, ended retrying.
	TimedOut bool
}

func (e *RetryExhaustedError) Error() string {
	reason := "attempts exhausted"
	if e.TimedOut {
		reason = "total timeout reached"
	}
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Op, reason, e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// RetryExecutor re-attempts fallible remote calls under a RetryPolicy.
// Waits select on the context, so a pending backoff is abandoned as soon
// as the run is cancelled and never blocks other goroutines.
type RetryExecutor struct {
	policy domain.RetryPolicy
	after  func(time.Duration) <-chan time.Time
	now    func() time.Time
}

// NewRetryExecutor creates an executor for policy.
func NewRetryExecutor(policy domain.RetryPolicy) *RetryExecutor {
	return &RetryExecutor{
		policy: policy,
		after:  time.After,
		now:    time.Now,
	}
}

// Policy returns the executor's policy.
func (r *RetryExecutor) Policy() domain.RetryPolicy {
	return r.policy
}

// Do runs fn until it succeeds, fails fatally, or the policy is exhausted.
func (r *RetryExecutor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is the value-returning form of RetryExecutor.Do.
//
// Fatal errors are returned unchanged after the first attempt. When the
// policy gives up, a *RetryExhaustedError wrapping the last error is returned.
func Retry[T any](ctx context.Context, r *RetryExecutor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := r.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := r.now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("%s succeeded on attempt %d", op, attempt)
			}
			return v, nil
		}

		kind := domain.Classify(err)
		if !r.policy.Retryable(kind) {
			return zero, err
		}
		if attempt >= maxAttempts {
			return zero, &RetryExhaustedError{Op: op, Attempts: attempt, Last: err}
		}

		wait := r.policy.Wait(attempt, err)
		if r.policy.TotalTimeout > 0 && r.now().Sub(start)+wait > r.policy.TotalTimeout {
			return zero, &RetryExhaustedError{Op: op, Attempts: attempt, Last: err, TimedOut: true}
		}

		logger.Warn("%s failed (attempt %d/%d, %s): %v; retrying in %s",
			op, attempt, maxAttempts, kind, err, wait)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.after(wait):
		}
	}
}
