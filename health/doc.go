// Package health reports whether the answer service and its backends are usable.
//
// Checkers are registered on an Aggregator, which runs them concurrently with
// a shared deadline. Three HTTP endpoints sit on top:
//
//   - /healthz: liveness, always 200 while the process serves requests
//   - /readyz: 503 when any check is unhealthy
//   - /health: JSON detail for every check
//
// NewPingChecker adapts a backend's Ping method; NewCacheChecker reports the
// answer cache's fill level and hit ratio.
package health
