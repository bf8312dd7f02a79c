package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// instantRetry returns an executor whose waits fire immediately and records them.
func instantRetry(policy domain.RetryPolicy) (*RetryExecutor, *[]time.Duration) {
	waits := &[]time.Duration{}
	r := NewRetryExecutor(policy)
	r.after = func(d time.Duration) <-chan time.Time {
		*waits = append(*waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return r, waits
}

func TestRetry_SucceedsFirstTime(t *testing.T) {
	r, waits := instantRetry(domain.RetryPolicy{MaxAttempts: 3, Backoff: time.Second})
	calls := 0

	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRetry_TransientExhaustsExactlyMaxAttempts(t *testing.T) {
	r, waits := instantRetry(domain.RetryPolicy{MaxAttempts: 3, Backoff: time.Second, Multiplier: 1})
	calls := 0
	boom := errors.New("connection reset")

	err := r.Do(context.Background(), "fetch page", func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 3, calls)
	assert.Len(t, *waits, 2)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.False(t, exhausted.TimedOut)
	assert.ErrorIs(t, err, boom)
}

func TestRetry_FatalFailsImmediately(t *testing.T) {
	r, waits := instantRetry(domain.RetryPolicy{MaxAttempts: 5, Backoff: time.Second})
	calls := 0

	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &domain.HTTPStatusError{Source: "catalog", StatusCode: 401}
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	var exhausted *RetryExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestRetry_RecoversAfterTransient(t *testing.T) {
	r, _ := instantRetry(domain.RetryPolicy{MaxAttempts: 5, Backoff: time.Second})
	calls := 0

	v, err := Retry(context.Background(), r, "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, domain.ErrTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_RateLimitUsesProviderWait(t *testing.T) {
	r, waits := instantRetry(domain.RetryPolicy{MaxAttempts: 2, Backoff: time.Second, Multiplier: 1})

	_ = r.Do(context.Background(), "op", func(context.Context) error {
		return &domain.RateLimitError{RetryAfter: time.Minute}
	})

	require.Len(t, *waits, 1)
	assert.Equal(t, time.Minute, (*waits)[0])
}

func TestRetry_TotalTimeout(t *testing.T) {
	r, waits := instantRetry(domain.RetryPolicy{
		MaxAttempts:  100,
		Backoff:      time.Minute,
		Multiplier:   1,
		TotalTimeout: 150 * time.Second,
	})
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	inner := r.after
	r.after = func(d time.Duration) <-chan time.Time {
		clock = clock.Add(d)
		return inner(d)
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return domain.ErrTransient
	})

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.TimedOut)
	assert.Equal(t, 3, calls)
	assert.Len(t, *waits, 2)
}

func TestRetry_CancelDuringWait(t *testing.T) {
	r := NewRetryExecutor(domain.RetryPolicy{MaxAttempts: 5, Backoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	r.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "op", func(context.Context) error { return domain.ErrTransient })
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetry_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	r, _ := instantRetry(domain.RetryPolicy{})
	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return domain.ErrTransient
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustedError_Message(t *testing.T) {
	err := &RetryExhaustedError{Op: "changes", Attempts: 3, Last: errors.New("reset")}
	assert.Equal(t, "changes: attempts exhausted after 3 attempts: reset", err.Error())

	err.TimedOut = true
	assert.Contains(t, err.Error(), "total timeout reached")
}
