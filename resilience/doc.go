// Package resilience guards calls to the retrieval and generation backends.
//
// The patterns compose through an Executor, outermost first:
//
//	rate limiter -> bulkhead -> circuit breaker -> retry -> timeout -> call
//
// Errors that expose a Retryable() bool method steer both retry and the
// circuit breaker: a non-retryable error (for example an HTTP 400) is
// returned at once and is not counted against the backend's health.
//
// A Policy is the YAML-facing description of one backend's guards:
//
//	exec := resilience.NewExecutorFromPolicy(resilience.Policy{
//	    Timeout:       30 * time.Second,
//	    Retry:         resilience.RetryPolicy{MaxAttempts: 3},
//	    Circuit:       resilience.CircuitPolicy{MaxFailures: 5, ResetTimeout: time.Minute},
//	    MaxConcurrent: 8,
//	})
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return callGenerator(ctx)
//	})
package resilience
