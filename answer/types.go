package answer

import (
	"context"
	"time"

	"github.com/jonwraymond/ragcache/cache"
)

// Source is one retrieved document's metadata.
type Source struct {
	ID       string         `json:"id,omitempty"`
	Source   string         `json:"source,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ref returns the identifiers used for cache key derivation.
func (s Source) Ref() cache.SourceRef {
	return cache.SourceRef{ID: s.ID, Source: s.Source}
}

// Retrieval is the output of a Retriever.
type Retrieval struct {
	// Context is the retrieved reference text, ready for the prompt.
	Context string
	// Sources are ordered by retrieval rank.
	Sources []Source
}

// Retriever fetches context for a query.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines.
// - Errors: any error is reported to callers as a retrieval failure.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (Retrieval, error)
}

// Generator produces answer text for a prompt.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: must honor cancellation/deadlines.
//   - Errors: implementations should return errors; text that reports a
//     failure is also classified as one by the Orchestrator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, k int) (Retrieval, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, k int) (Retrieval, error) {
	return f(ctx, query, k)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Request is a single question.
type Request struct {
	Query string `json:"query"`
	// K bounds the number of retrieved sources. K<=0 uses the orchestrator default.
	K int `json:"k,omitempty"`
	// TTL for a newly cached answer. TTL<=0 uses the cache default.
	TTL time.Duration `json:"-"`
	// AuxContext is added to the prompt but never to the cache key.
	AuxContext string `json:"aux_context,omitempty"`
}

// Result is the answer to a Request.
type Result struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	CacheHit bool     `json:"cache_hit"`
}

// Entry is the cached value for one key.
type Entry struct {
	Answer string `json:"answer"`
	Prompt string `json:"prompt"`
}

// Cache is the answer cache an Orchestrator reads and populates.
type Cache = cache.Cache[Entry]

// NewCache creates an expiring LRU answer cache.
func NewCache(p cache.Policy, opts ...cache.Option) *cache.LRU[Entry] {
	return cache.NewFromPolicy[Entry](p, opts...)
}
