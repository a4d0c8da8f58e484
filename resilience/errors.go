package resilience

import (
	"context"
	"errors"
)

// Guard rejections. ErrMaxRetriesExceeded wraps the final attempt's error.
var (
	ErrCircuitOpen        = errors.New("resilience: circuit open")
	ErrMaxRetriesExceeded = errors.New("resilience: retries exhausted")
	ErrRateLimitExceeded  = errors.New("resilience: rate limited")
	ErrBulkheadFull       = errors.New("resilience: too many concurrent calls")
	ErrTimeout            = errors.New("resilience: attempt timed out")
)

// Retryable is implemented by errors that know whether a repeat attempt can succeed.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is worth another attempt.
// Cancellation and guard rejections are never retried. Errors implementing
// Retryable decide for themselves; anything else is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrBulkheadFull) ||
		errors.Is(err, ErrRateLimitExceeded) {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// IsBackendFailure reports whether err says something about backend health.
// Caller cancellation and non-retryable request errors do not.
func IsBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
