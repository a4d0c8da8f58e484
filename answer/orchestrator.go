package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/observe"
)

// DefaultK is the retrieval bound used when a Request leaves K unset.
const DefaultK = 3

// Orchestrator answers questions through retrieval, the answer cache, and generation.
//
// Contract:
// - Concurrency: safe for concurrent use; the cache is the only shared state.
// - Context: ctx is passed to the retriever and generator.
// - Errors: stage failures are *StageError values; nothing is retried here.
type Orchestrator struct {
	retriever Retriever
	generator Generator
	cache     Cache
	keyer     cache.Keyer
	prompt    PromptBuilder
	detect    ErrorTextDetector
	mw        *observe.Middleware
	logger    observe.Logger
	defaultK  int
	coalesce  bool
	caching   bool
	flight    singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithKeyer replaces the default SHA-256 keyer.
func WithKeyer(k cache.Keyer) Option {
	return func(o *Orchestrator) {
		if k != nil {
			o.keyer = k
		}
	}
}

// WithPromptBuilder replaces BuildPrompt.
func WithPromptBuilder(b PromptBuilder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompt = b
		}
	}
}

// WithErrorTextDetector replaces DetectErrorText.
func WithErrorTextDetector(d ErrorTextDetector) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.detect = d
		}
	}
}

// WithMiddleware instruments stages and cache lookups.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(o *Orchestrator) {
		if mw != nil {
			o.mw = mw
			o.logger = mw.Logger()
		}
	}
}

// WithDefaultK sets the retrieval bound for requests without K.
func WithDefaultK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.defaultK = k
		}
	}
}

// WithCoalescing makes concurrent misses on the same key share one
// generation call. Waiters receive the leader's answer with CacheHit false.
// The shared call outlives any single caller's cancellation; each caller
// still stops waiting when its own context ends.
func WithCoalescing(enabled bool) Option {
	return func(o *Orchestrator) {
		o.coalesce = enabled
	}
}

// New creates an Orchestrator. A nil cache, or one whose Policy cannot
// store anything, disables caching: Ask then skips key derivation and the
// cache entirely.
func New(r Retriever, g Generator, c Cache, opts ...Option) (*Orchestrator, error) {
	if r == nil {
		return nil, ErrNilRetriever
	}
	if g == nil {
		return nil, ErrNilGenerator
	}
	if c == nil {
		c = cache.NewFromPolicy[Entry](cache.NoCachePolicy())
	}
	o := &Orchestrator{
		retriever: r,
		generator: g,
		cache:     c,
		keyer:     cache.NewDefaultKeyer(),
		prompt:    BuildPrompt,
		detect:    DetectErrorText,
		mw:        observe.NopMiddleware(),
		logger:    observe.NopLogger(),
		defaultK:  DefaultK,
		caching:   cachingEnabled(c),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(observe.F("component", "answer"))
	return o, nil
}

// Cache returns the orchestrator's answer cache.
func (o *Orchestrator) Cache() Cache {
	return o.cache
}

// Ask answers req, reusing a cached answer when the normalized query and the
// ordered retrieved sources match a live entry.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Result, error) {
	query, k, err := o.prepare(req)
	if err != nil {
		return Result{}, err
	}

	ret, err := o.retrieve(ctx, query, k)
	if err != nil {
		return Result{}, err
	}
	if !o.caching {
		o.mw.Metrics().RecordCacheLookup(ctx, false)
		text, err := o.generate(ctx, o.prompt(ret.Context, query, req.AuxContext))
		if err != nil {
			return Result{}, err
		}
		return Result{Answer: text, Sources: ret.Sources}, nil
	}

	key, err := o.key(query, ret.Sources)
	if err != nil {
		return Result{}, err
	}

	if e, ok := o.cache.Get(ctx, key); ok {
		o.mw.Metrics().RecordCacheLookup(ctx, true)
		o.logger.Debug(ctx, "answer cache hit", observe.F("key", shortKey(key)))
		return Result{Answer: e.Answer, Sources: ret.Sources, CacheHit: true}, nil
	}
	o.mw.Metrics().RecordCacheLookup(ctx, false)
	o.logger.Debug(ctx, "answer cache miss", observe.F("key", shortKey(key)))

	var text string
	if o.coalesce {
		text, err = o.generateShared(ctx, key, query, ret.Context, req)
	} else {
		text, err = o.generateAndStore(ctx, key, query, ret.Context, req)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{Answer: text, Sources: ret.Sources, CacheHit: false}, nil
}

// generateShared runs one generateAndStore per key across concurrent callers.
// The call runs detached from the leader's cancellation so a departing
// leader cannot fail the callers still waiting on it.
func (o *Orchestrator) generateShared(ctx context.Context, key, query, retrieved string, req Request) (string, error) {
	ch := o.flight.DoChan(key, func() (any, error) {
		return o.generateAndStore(context.WithoutCancel(ctx), key, query, retrieved, req)
	})
	select {
	case <-ctx.Done():
		return "", &StageError{Stage: StageGenerate, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			o.logger.Debug(ctx, "answer shared with concurrent request", observe.F("key", shortKey(key)))
		}
		return res.Val.(string), nil
	}
}

// AskUncached answers req without reading or writing the cache.
func (o *Orchestrator) AskUncached(ctx context.Context, req Request) (Result, error) {
	query, k, err := o.prepare(req)
	if err != nil {
		return Result{}, err
	}

	ret, err := o.retrieve(ctx, query, k)
	if err != nil {
		return Result{}, err
	}

	text, err := o.generate(ctx, o.prompt(ret.Context, query, req.AuxContext))
	if err != nil {
		return Result{}, err
	}
	return Result{Answer: text, Sources: ret.Sources}, nil
}

func (o *Orchestrator) prepare(req Request) (string, int, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", 0, ErrEmptyQuery
	}
	if !utf8.ValidString(query) {
		return "", 0, ErrInvalidQuery
	}
	k := req.K
	if k <= 0 {
		k = o.defaultK
	}
	return query, k, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, query string, k int) (Retrieval, error) {
	var ret Retrieval
	err := o.mw.Run(ctx, observe.StageMeta{Name: string(StageRetrieve), Component: componentName(o.retriever)}, func(ctx context.Context) error {
		var err error
		ret, err = o.retriever.Retrieve(ctx, query, k)
		return err
	})
	if err != nil {
		return Retrieval{}, &StageError{Stage: StageRetrieve, Err: err}
	}
	if ret.Sources == nil {
		ret.Sources = []Source{}
	}
	return ret, nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := o.mw.Run(ctx, observe.StageMeta{Name: string(StageGenerate), Component: componentName(o.generator)}, func(ctx context.Context) error {
		var err error
		text, err = o.generator.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		return o.detect(text)
	})
	if err != nil {
		return "", &StageError{Stage: StageGenerate, Err: err}
	}
	return text, nil
}

// generateAndStore caches the answer only after generation succeeds.
func (o *Orchestrator) generateAndStore(ctx context.Context, key, query, retrieved string, req Request) (string, error) {
	prompt := o.prompt(retrieved, query, req.AuxContext)
	text, err := o.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	entry := Entry{Answer: text, Prompt: prompt}
	if req.TTL > 0 {
		o.cache.SetWithTTL(ctx, key, entry, req.TTL)
	} else {
		o.cache.Set(ctx, key, entry)
	}
	return text, nil
}

func (o *Orchestrator) key(query string, sources []Source) (string, error) {
	refs := make([]cache.SourceRef, len(sources))
	for i, s := range sources {
		refs[i] = s.Ref()
	}
	key, err := o.keyer.Key(query, refs)
	if err != nil {
		return "", fmt.Errorf("answer: derive cache key: %w", err)
	}
	return key, nil
}

// cachingEnabled reports false for caches whose policy stores nothing.
// Caches without a Policy method are assumed to store.
func cachingEnabled(c Cache) bool {
	if p, ok := c.(interface{ Policy() cache.Policy }); ok {
		return p.Policy().ShouldCache()
	}
	return true
}

// componentName reports a collaborator's Name() when it has one.
func componentName(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

func shortKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// IsStageFailure reports whether err came from the retrieve or generate stage.
func IsStageFailure(err error) bool {
	return errors.Is(err, ErrRetrieval) || errors.Is(err, ErrGeneration)
}
