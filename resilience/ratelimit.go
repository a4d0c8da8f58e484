package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures RateLimiter. Zero values take the defaults noted.
type RateLimiterConfig struct {
	Rate  float64 // tokens per second; default 10
	Burst int     // bucket size; default 1

	// WaitOnLimit queues callers for up to MaxWait (default 1s) instead of
	// rejecting them.
	WaitOnLimit bool
	MaxWait     time.Duration
}

// RateLimiter is a token bucket in front of a backend.
type RateLimiter struct {
	wait    bool
	maxWait time.Duration
	limiter *rate.Limiter
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	r, burst, maxWait := config.Rate, config.Burst, config.MaxWait
	if r <= 0 {
		r = 10
	}
	if burst <= 0 {
		burst = 1
	}
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return &RateLimiter{
		wait:    config.WaitOnLimit,
		maxWait: maxWait,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

// Allow takes a token if one is available now.
func (rl *RateLimiter) Allow() bool { return rl.limiter.Allow() }

// Tokens returns the tokens currently in the bucket.
func (rl *RateLimiter) Tokens() float64 { return rl.limiter.Tokens() }

// Wait reserves a token and sleeps until it is due. A reservation further out
// than MaxWait is given back and reported as ErrRateLimitExceeded.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := rl.limiter.Reserve()
	delay := res.Delay()
	if !res.OK() || delay > rl.maxWait {
		res.Cancel()
		return ErrRateLimitExceeded
	}
	if delay == 0 {
		return nil
	}
	if err := sleepCtx(ctx, delay); err != nil {
		res.Cancel()
		return err
	}
	return nil
}

// Execute runs op once the limiter admits it.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	switch {
	case rl.wait:
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	case !rl.Allow():
		return ErrRateLimitExceeded
	}
	return op(ctx)
}
