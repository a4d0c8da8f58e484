package health

import (
	"context"
	"time"
)

// Status orders component health from best to worst.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Result is the outcome of one check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func newResult(s Status, msg string, err error) Result {
	return Result{Status: s, Message: msg, Error: err, Timestamp: time.Now()}
}

func Healthy(msg string) Result              { return newResult(StatusHealthy, msg, nil) }
func Degraded(msg string) Result             { return newResult(StatusDegraded, msg, nil) }
func Unhealthy(msg string, err error) Result { return newResult(StatusUnhealthy, msg, err) }

// WithDetails returns r with Details set.
func (r Result) WithDetails(d map[string]any) Result {
	r.Details = d
	return r
}

// Checker is one named health check. Check may run concurrently with other
// checks and must return once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is a Checker backed by a function.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string                     { return f.name }
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// PingFunc returns nil when a dependency answers.
type PingFunc func(ctx context.Context) error

// NewPingChecker turns a backend ping into a check. A failed ping is
// unhealthy for critical backends and degraded otherwise.
func NewPingChecker(name string, ping PingFunc, critical bool) Checker {
	failed := StatusDegraded
	if critical {
		failed = StatusUnhealthy
	}
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return newResult(failed, name+" unreachable", err)
		}
		return Healthy(name + " reachable")
	})
}
