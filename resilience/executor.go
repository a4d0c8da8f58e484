package resilience

import (
	"context"
	"time"
)

// Executor composes resilience patterns around a call.
type Executor struct {
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it just runs the call.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds rate limiting.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Execute runs op through the configured patterns:
// rate limiter, bulkhead, circuit breaker, retry, then a per-attempt timeout.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op
	if e.timeout != nil {
		call = wrap(call, e.timeout.Execute)
	}
	if e.retry != nil {
		call = wrap(call, e.retry.Execute)
	}
	if e.circuitBreaker != nil {
		call = wrap(call, e.circuitBreaker.Execute)
	}
	if e.bulkhead != nil {
		call = wrap(call, e.bulkhead.Execute)
	}
	if e.rateLimiter != nil {
		call = wrap(call, e.rateLimiter.Execute)
	}
	return call(ctx)
}

type guard func(context.Context, func(context.Context) error) error

func wrap(inner func(context.Context) error, g guard) func(context.Context) error {
	return func(ctx context.Context) error { return g(ctx, inner) }
}

// Policy describes the guards for one backend in configuration files.
// Zero-valued sections are disabled.
type Policy struct {
	Timeout       time.Duration   `yaml:"timeout"`
	Retry         RetryPolicy     `yaml:"retry"`
	Circuit       CircuitPolicy   `yaml:"circuit"`
	RateLimit     RateLimitPolicy `yaml:"rate_limit"`
	MaxConcurrent int             `yaml:"max_concurrent"`
}

// RetryPolicy enables retries when MaxAttempts > 1.
type RetryPolicy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitPolicy enables a circuit breaker when MaxFailures > 0.
type CircuitPolicy struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RateLimitPolicy enables rate limiting when Rate > 0.
type RateLimitPolicy struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	// Wait blocks up to MaxWait for a token instead of failing fast.
	Wait    bool          `yaml:"wait"`
	MaxWait time.Duration `yaml:"max_wait"`
}

// NewExecutorFromPolicy builds an Executor enabling only the sections p sets.
// Extra options are applied last.
func NewExecutorFromPolicy(p Policy, opts ...ExecutorOption) *Executor {
	var base []ExecutorOption
	if p.Timeout > 0 {
		base = append(base, WithTimeout(p.Timeout))
	}
	if p.Retry.MaxAttempts > 1 {
		base = append(base, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  p.Retry.MaxAttempts,
			InitialDelay: p.Retry.InitialDelay,
			MaxDelay:     p.Retry.MaxDelay,
			Jitter:       true,
		})))
	}
	if p.Circuit.MaxFailures > 0 {
		base = append(base, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  p.Circuit.MaxFailures,
			ResetTimeout: p.Circuit.ResetTimeout,
		})))
	}
	if p.RateLimit.Rate > 0 {
		base = append(base, WithRateLimiter(NewRateLimiter(RateLimiterConfig{
			Rate:        p.RateLimit.Rate,
			Burst:       p.RateLimit.Burst,
			WaitOnLimit: p.RateLimit.Wait,
			MaxWait:     p.RateLimit.MaxWait,
		})))
	}
	if p.MaxConcurrent > 0 {
		base = append(base, WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: p.MaxConcurrent})))
	}
	return NewExecutor(append(base, opts...)...)
}
