package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds each call with a deadline.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a timeout guard. d<=0 defaults to 30s.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{d: d}
}

// Duration returns the configured deadline.
func (t *Timeout) Duration() time.Duration {
	return t.d
}

// Execute runs op with a derived deadline. op must honor ctx.
// An error caused by this deadline wraps ErrTimeout; a deadline set by the
// caller is reported unchanged.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	err := op(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, t.d, err)
	}
	return err
}
