package resilience

import (
	"context"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrCircuitOpen
	StateHalfOpen              // a limited number of trial calls pass through
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures CircuitBreaker. Zero values take the
// defaults noted.
type CircuitBreakerConfig struct {
	MaxFailures         int           // consecutive failures that open the circuit; default 5
	ResetTimeout        time.Duration // open period before probing; default 30s
	HalfOpenMaxRequests int           // concurrent trial calls while half-open; default 1

	// OnStateChange runs under the breaker lock and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure reports whether err counts against the backend. Default: IsBackendFailure
	IsFailure func(err error) bool

	Clock func() time.Time
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = IsBackendFailure
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// CircuitBreaker stops calling a backend after MaxFailures consecutive
// failures and tries it again once ResetTimeout has passed.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	inflight    int // half-open trial calls
	openedAt    time.Time
	lastFailure time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config.withDefaults()}
}

// Execute runs op unless the circuit rejects it with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	done, err := cb.allow()
	if err != nil {
		return err
	}
	err = op(ctx)
	done(err)
	return err
}

// State returns the current state. An open circuit whose reset timeout has
// passed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current()
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setState(StateClosed)
}

// allow admits one call and returns the hook that reports its outcome.
func (cb *CircuitBreaker) allow() (func(error), error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.current() {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inflight >= cb.config.HalfOpenMaxRequests {
			return nil, ErrCircuitOpen
		}
		cb.inflight++
		return cb.onTrialDone, nil
	}
	return cb.onClosedDone, nil
}

func (cb *CircuitBreaker) onClosedDone(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.IsFailure(err) {
		cb.failures = 0
		return
	}
	now := cb.config.Clock()
	cb.lastFailure = now
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.config.MaxFailures {
		cb.trip(now)
	}
}

func (cb *CircuitBreaker) onTrialDone(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateHalfOpen {
		return
	}
	cb.inflight--
	if cb.config.IsFailure(err) {
		now := cb.config.Clock()
		cb.lastFailure = now
		cb.trip(now)
		return
	}
	cb.failures = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.openedAt = now
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) current() State {
	if cb.state == StateOpen && cb.config.Clock().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state, cb.inflight = to, 0
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// CircuitBreakerMetrics is a point-in-time view of a CircuitBreaker.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	LastFailure time.Time
}

func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{State: cb.current(), Failures: cb.failures, LastFailure: cb.lastFailure}
}
