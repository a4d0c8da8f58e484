// Package observe provides observability primitives for the answer pipeline.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. The answer orchestrator wraps each pipeline stage
// (retrieve, generate) in a Middleware and reports cache lookups through
// Metrics; the server and CLI share one JSON Logger.
package observe
