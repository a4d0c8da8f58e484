package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy int

const (
	BackoffExponential BackoffStrategy = iota
	BackoffLinear
	BackoffConstant
)

// RetryConfig configures Retry. Zero values take the defaults noted.
type RetryConfig struct {
	MaxAttempts  int           // attempts including the first; default 3
	InitialDelay time.Duration // delay before the first retry; default 200ms
	MaxDelay     time.Duration // cap on any single delay; default 5s
	Multiplier   float64       // exponential factor; default 2
	Strategy     BackoffStrategy

	// Jitter adds up to 25% to each delay.
	Jitter bool

	// RetryIf reports whether err is worth another attempt. Default: IsRetryable
	RetryIf func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
	return c
}

// Retry re-runs failed calls with backoff.
type Retry struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config.withDefaults(), sleep: sleepCtx}
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig { return r.config }

// Execute calls op until it succeeds, fails with an error RetryIf rejects, or
// runs out of attempts. Exhaustion wraps both ErrMaxRetriesExceeded and the
// last error; a single-attempt config returns the error untouched.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	n := r.config.MaxAttempts
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil || !r.config.RetryIf(err) {
			return err
		}
		if attempt == n {
			break
		}
		d := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, d)
		}
		if serr := r.sleep(ctx, d); serr != nil {
			return serr
		}
	}
	if n == 1 {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, n, err)
}

// delay returns the pause after the given failed attempt (1-based).
func (r *Retry) delay(attempt int) time.Duration {
	c := r.config
	d := c.InitialDelay
	switch c.Strategy {
	case BackoffLinear:
		d *= time.Duration(attempt)
	case BackoffExponential:
		f := float64(d)
		for i := 1; i < attempt && f < float64(c.MaxDelay); i++ {
			f *= c.Multiplier
		}
		d = time.Duration(f)
	}
	d = min(d, c.MaxDelay)
	if c.Jitter && d >= 4 {
		// #nosec G404 -- timing variance, not security.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
