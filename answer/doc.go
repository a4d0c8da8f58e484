// Package answer sequences retrieval, answer caching, and generation into one
// request/response cycle.
//
// An Orchestrator retrieves context for a query, derives a cache key from the
// normalized query and the ordered retrieved source identifiers, and either
// returns the cached answer or generates, stores, and returns a new one. The
// sources in a Result always come from the current retrieval call, even on a
// cache hit.
//
// Auxiliary context (a caller-supplied status snapshot) is part of the prompt
// but not of the cache key: two requests that differ only in auxiliary context
// share one cached answer.
//
// Failures are tagged with the stage that produced them:
//
//	res, err := orch.Ask(ctx, answer.Request{Query: "what is a fever?"})
//	switch {
//	case errors.Is(err, answer.ErrRetrieval):
//		// could not retrieve context
//	case errors.Is(err, answer.ErrGeneration):
//		// could not generate an answer
//	}
//
// The cache is written only after generation succeeds, and its lock is never
// held across a retriever or generator call.
package answer
