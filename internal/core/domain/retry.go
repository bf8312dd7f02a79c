package domain

import (
	"context"
	"errors"
	"io"
	"syscall"
	"time"
)

// ErrorKind classifies a failed remote call for retry decisions.
type ErrorKind int

const (
	// KindTransient covers resets, timeouts and server errors.
	KindTransient ErrorKind = iota

	// KindRateLimit covers throttled calls; retried with a longer wait.
	KindRateLimit

	// KindFatal is never retried.
	KindFatal
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the retry taxonomy.
// Unrecognised errors are treated as transient; cancellation is fatal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}

	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		return KindRateLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindFatal
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrSchemaValidation):
		return KindFatal
	case errors.Is(err, ErrTransient), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return KindTransient
	}
	// net.Error timeouts and anything else unrecognised fall through as transient.
	return KindTransient
}

// RetryAfter extracts a provider-specified wait from a rate limit error.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// RetryPolicy configures the retry executor.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// Backoff is the wait before the second attempt.
	Backoff time.Duration

	// Multiplier scales the wait after each failure. 1 means fixed backoff.
	Multiplier float64

	// MaxBackoff caps escalating waits. Zero means uncapped.
	MaxBackoff time.Duration

	// RateLimitBackoff is the minimum wait after a rate-limited call
	// when the remote side did not specify one.
	RateLimitBackoff time.Duration

	// TotalTimeout stops retrying once this much time has elapsed. Zero disables it.
	TotalTimeout time.Duration

	// RetryableKinds lists the kinds that are retried. Empty means transient and rate limit.
	RetryableKinds []ErrorKind
}

// DefaultRetryPolicy mirrors the production defaults: 20 attempts, 12 minutes apart, 4 hours total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      20,
		Backoff:          12 * time.Minute,
		Multiplier:       1,
		RateLimitBackoff: 12 * time.Minute,
		TotalTimeout:     4 * time.Hour,
	}
}

// Retryable reports whether the policy retries the given kind.
func (p RetryPolicy) Retryable(kind ErrorKind) bool {
	if len(p.RetryableKinds) == 0 {
		return kind == KindTransient || kind == KindRateLimit
	}
	for _, k := range p.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Wait returns the backoff before attempt n+1 after the nth attempt failed with err.
func (p RetryPolicy) Wait(attempt int, err error) time.Duration {
	wait := p.Backoff
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * mult)
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
			break
		}
	}

	if Classify(err) == KindRateLimit {
		after := RetryAfter(err)
		if after == 0 {
			after = p.RateLimitBackoff
		}
		if after > wait {
			wait = after
		}
	}
	return wait
}
