package answer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/observe"
)

type fakeRetriever struct {
	mu      sync.Mutex
	calls   int
	lastK   int
	context string
	sources []Source
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k int) (Retrieval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	if f.err != nil {
		return Retrieval{}, f.err
	}
	return Retrieval{Context: f.context, Sources: append([]Source(nil), f.sources...)}, nil
}

func (f *fakeRetriever) setSources(s ...Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = s
}

func (f *fakeRetriever) Name() string { return "fake-retriever" }

type fakeGenerator struct {
	calls   atomic.Int32
	prompts []string
	mu      sync.Mutex
	reply   func(n int32, prompt string) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(n, prompt)
	}
	return "answer #" + string(rune('0'+n)), nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func defaultSources() []Source {
	return []Source{
		{Source: "https://example.org/fever", Title: "Fever"},
		{ID: "doc-2"},
	}
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *fakeRetriever, *fakeGenerator, *cache.LRU[Entry]) {
	t.Helper()
	r := &fakeRetriever{context: "Fever is a raised body temperature.", sources: defaultSources()}
	g := &fakeGenerator{}
	c := cache.New[Entry](16, time.Hour)
	o, err := New(r, g, c, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o, r, g, c
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, &fakeGenerator{}, nil); !errors.Is(err, ErrNilRetriever) {
		t.Errorf("err = %v, want ErrNilRetriever", err)
	}
	if _, err := New(&fakeRetriever{}, nil, nil); !errors.Is(err, ErrNilGenerator) {
		t.Errorf("err = %v, want ErrNilGenerator", err)
	}
}

func TestAsk_MissThenHit(t *testing.T) {
	o, _, g, c := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.Ask(ctx, Request{Query: "What is a fever?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if first.CacheHit {
		t.Error("first call must be a miss")
	}
	if first.Answer != "answer #1" {
		t.Errorf("Answer = %q", first.Answer)
	}
	if c.Info().Size != 1 {
		t.Errorf("cache size = %d, want 1", c.Info().Size)
	}

	second, err := o.Ask(ctx, Request{Query: "What is a fever?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("second call must be a hit")
	}
	if second.Answer != first.Answer {
		t.Errorf("Answer = %q, want %q", second.Answer, first.Answer)
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
}

func TestAsk_HitIgnoresAuxContext(t *testing.T) {
	o, _, g, _ := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.Ask(ctx, Request{Query: "fever", AuxContext: "HR=80"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	second, err := o.Ask(ctx, Request{Query: "fever", AuxContext: "HR=140"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !second.CacheHit || second.Answer != first.Answer {
		t.Errorf("second = %+v, want cached %q", second, first.Answer)
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
}

func TestAsk_HitReturnsFreshSources(t *testing.T) {
	o, r, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Ask(ctx, Request{Query: "fever"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	fresh := defaultSources()
	fresh[0].Title = "Fever (updated)"
	fresh[0].Metadata = map[string]any{"rank": 1}
	r.setSources(fresh...)

	res, err := o.Ask(ctx, Request{Query: "fever"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !res.CacheHit {
		t.Fatal("identifiers unchanged, want a hit")
	}
	if res.Sources[0].Title != "Fever (updated)" {
		t.Errorf("Sources[0].Title = %q, want the freshly retrieved title", res.Sources[0].Title)
	}
}

func TestAsk_MissOnSourceDrift(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
	}{
		{"reordered", []Source{{ID: "doc-2"}, {Source: "https://example.org/fever", Title: "Fever"}}},
		{"replaced", []Source{{Source: "https://example.org/fever"}, {ID: "doc-3"}}},
		{"fewer", []Source{{Source: "https://example.org/fever"}}},
		{"missing identifiers", []Source{{Title: "untitled"}, {ID: "doc-2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, r, g, _ := newTestOrchestrator(t)
			ctx := context.Background()

			if _, err := o.Ask(ctx, Request{Query: "fever"}); err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			r.setSources(tt.sources...)
			res, err := o.Ask(ctx, Request{Query: "fever"})
			if err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if res.CacheHit {
				t.Error("source drift must miss")
			}
			if n := g.calls.Load(); n != 2 {
				t.Errorf("generator calls = %d, want 2", n)
			}
		})
	}
}

func TestAsk_NormalizedQueryHits(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Ask(ctx, Request{Query: "what is a fever?"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	res, err := o.Ask(ctx, Request{Query: "  WHAT is a Fever?\n"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !res.CacheHit {
		t.Error("case and whitespace variants must share an entry")
	}
}

func TestAsk_RetrievalFailure(t *testing.T) {
	o, r, g, c := newTestOrchestrator(t)
	r.err = errors.New("chroma: connection refused")

	_, err := o.Ask(context.Background(), Request{Query: "fever"})
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
	if errors.Is(err, ErrGeneration) {
		t.Error("retrieval failure must not match ErrGeneration")
	}
	if !errors.Is(err, r.err) {
		t.Error("cause must be preserved")
	}
	if StageOf(err) != StageRetrieve {
		t.Errorf("StageOf = %q", StageOf(err))
	}
	if g.calls.Load() != 0 {
		t.Error("generator must not run after a retrieval failure")
	}
	if c.Info().Size != 0 || c.Stats().Misses != 0 {
		t.Error("retrieval failure must not touch the cache")
	}
}

func TestAsk_GenerationFailureNotCached(t *testing.T) {
	o, _, g, c := newTestOrchestrator(t)
	upstream := errors.New("503 service unavailable")
	g.reply = func(n int32, _ string) (string, error) {
		if n == 1 {
			return "", upstream
		}
		return "recovered", nil
	}
	ctx := context.Background()

	_, err := o.Ask(ctx, Request{Query: "fever"})
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, upstream) {
		t.Fatalf("err = %v, want ErrGeneration wrapping the upstream error", err)
	}
	if errors.Is(err, ErrRetrieval) {
		t.Error("generation failure must not match ErrRetrieval")
	}
	if c.Info().Size != 0 {
		t.Errorf("cache size = %d, want 0", c.Info().Size)
	}

	res, err := o.Ask(ctx, Request{Query: "fever"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if res.CacheHit || res.Answer != "recovered" {
		t.Errorf("res = %+v, want a fresh generation", res)
	}
}

func TestAsk_ErrorTextIsGenerationFailure(t *testing.T) {
	for _, text := range []string{"[Groq Error]: rate limited", "", "   "} {
		o, _, g, c := newTestOrchestrator(t)
		g.reply = func(int32, string) (string, error) { return text, nil }

		_, err := o.Ask(context.Background(), Request{Query: "fever"})
		if !errors.Is(err, ErrGeneration) {
			t.Errorf("text %q: err = %v, want ErrGeneration", text, err)
		}
		if c.Info().Size != 0 {
			t.Errorf("text %q: failure was cached", text)
		}
	}
}

func TestAsk_CustomErrorTextDetector(t *testing.T) {
	sentinel := errors.New("refusal")
	o, _, g, _ := newTestOrchestrator(t, WithErrorTextDetector(func(text string) error {
		if strings.HasPrefix(text, "I cannot") {
			return sentinel
		}
		return nil
	}))
	g.reply = func(int32, string) (string, error) { return "I cannot help", nil }

	if _, err := o.Ask(context.Background(), Request{Query: "fever"}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want the detector's error", err)
	}
}

func TestAsk_EmptyQuery(t *testing.T) {
	o, r, _, _ := newTestOrchestrator(t)
	if _, err := o.Ask(context.Background(), Request{Query: " \t"}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
	if r.calls != 0 {
		t.Error("retriever must not be called for an empty query")
	}
}

func TestAsk_InvalidUTF8Query(t *testing.T) {
	o, r, g, _ := newTestOrchestrator(t)
	if _, err := o.Ask(context.Background(), Request{Query: "fever\xff"}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Ask() err = %v, want ErrInvalidQuery", err)
	}
	if _, err := o.AskUncached(context.Background(), Request{Query: "\xfe"}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("AskUncached() err = %v, want ErrInvalidQuery", err)
	}
	if r.calls != 0 || g.calls.Load() != 0 {
		t.Error("collaborators must not be called for an invalid query")
	}
}

func TestAsk_K(t *testing.T) {
	o, r, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, _ = o.Ask(ctx, Request{Query: "a"})
	if r.lastK != DefaultK {
		t.Errorf("k = %d, want %d", r.lastK, DefaultK)
	}
	_, _ = o.Ask(ctx, Request{Query: "b", K: 7})
	if r.lastK != 7 {
		t.Errorf("k = %d, want 7", r.lastK)
	}

	o2, r2, _, _ := newTestOrchestrator(t, WithDefaultK(5))
	_, _ = o2.Ask(ctx, Request{Query: "c"})
	if r2.lastK != 5 {
		t.Errorf("k = %d, want 5", r2.lastK)
	}
}

func TestAsk_RequestTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := &fakeRetriever{sources: defaultSources()}
	g := &fakeGenerator{}
	c := cache.New[Entry](8, time.Hour, cache.WithClock(clock.Now))
	o, err := New(r, g, c)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, err := o.Ask(ctx, Request{Query: "fever", TTL: time.Minute}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	clock.Advance(59 * time.Second)
	if res, _ := o.Ask(ctx, Request{Query: "fever"}); !res.CacheHit {
		t.Error("want hit before the request TTL")
	}
	clock.Advance(time.Second)
	if res, _ := o.Ask(ctx, Request{Query: "fever"}); res.CacheHit {
		t.Error("want miss at the request TTL")
	}

	// The regenerated entry uses the cache default of one hour.
	clock.Advance(59 * time.Minute)
	if res, _ := o.Ask(ctx, Request{Query: "fever"}); !res.CacheHit {
		t.Error("want hit within the default TTL")
	}
}

func TestAsk_StoresPrompt(t *testing.T) {
	o, r, g, c := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Ask(ctx, Request{Query: "fever", AuxContext: "HR=80"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	prompt := g.lastPrompt()
	if !strings.Contains(prompt, r.context) || !strings.Contains(prompt, "HR=80") {
		t.Errorf("prompt missing context or aux:\n%s", prompt)
	}

	key := cache.DeriveKey("fever", []cache.SourceRef{defaultSources()[0].Ref(), defaultSources()[1].Ref()})
	e, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("entry not stored under the derived key")
	}
	if e.Prompt != prompt {
		t.Error("stored prompt differs from the generation prompt")
	}
}

func TestAsk_CustomPromptBuilder(t *testing.T) {
	o, _, g, _ := newTestOrchestrator(t, WithPromptBuilder(func(ctx, q, aux string) string {
		return "Q:" + q
	}))
	_, _ = o.Ask(context.Background(), Request{Query: "fever"})
	if g.lastPrompt() != "Q:fever" {
		t.Errorf("prompt = %q", g.lastPrompt())
	}
}

func TestAsk_NilCacheNeverHits(t *testing.T) {
	r := &fakeRetriever{sources: defaultSources()}
	g := &fakeGenerator{}
	o, err := New(r, g, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		res, err := o.Ask(context.Background(), Request{Query: "fever"})
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
		if res.CacheHit {
			t.Fatal("zero-capacity cache must never hit")
		}
	}
	if g.calls.Load() != 3 {
		t.Errorf("generator calls = %d, want 3", g.calls.Load())
	}
}

func TestAsk_ZeroCapacityPolicySkipsCache(t *testing.T) {
	r := &fakeRetriever{sources: defaultSources()}
	g := &fakeGenerator{}
	c := NewCache(cache.Policy{Capacity: 0, DefaultTTL: time.Hour})
	o, err := New(r, g, c, WithKeyer(failingKeyer{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := o.Ask(context.Background(), Request{Query: "fever"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if res.CacheHit || res.Answer == "" {
		t.Errorf("Ask() = %+v", res)
	}
	if s := c.Stats(); s.Hits+s.Misses != 0 {
		t.Errorf("cache was consulted: %+v", s)
	}
}

// failingKeyer proves key derivation is skipped when it is never called.
type failingKeyer struct{}

func (failingKeyer) Key(string, []cache.SourceRef) (string, error) {
	return "", errors.New("keyer must not be called")
}

func TestAskUncached(t *testing.T) {
	o, _, g, c := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Ask(ctx, Request{Query: "fever"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	res, err := o.AskUncached(ctx, Request{Query: "fever"})
	if err != nil {
		t.Fatalf("AskUncached() error = %v", err)
	}
	if res.CacheHit {
		t.Error("AskUncached must never report a hit")
	}
	if g.calls.Load() != 2 {
		t.Errorf("generator calls = %d, want 2", g.calls.Load())
	}
	if st := c.Stats(); st.Hits+st.Misses != 1 {
		t.Errorf("cache lookups = %d, want 1", st.Hits+st.Misses)
	}
}

func TestAsk_NoLockHeldDuringGeneration(t *testing.T) {
	var o *Orchestrator
	r := &fakeRetriever{sources: defaultSources()}
	g := &fakeGenerator{}
	g.reply = func(int32, string) (string, error) {
		// Touches the cache from inside the generator.
		o.Cache().Set(context.Background(), "other", Entry{Answer: "x"})
		_ = o.Cache().Info()
		return "ok", nil
	}
	var err error
	o, err = New(r, g, cache.New[Entry](8, time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := o.Ask(context.Background(), Request{Query: "fever"})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ask deadlocked: cache lock held across generation")
	}
}

func TestAsk_Coalescing(t *testing.T) {
	release := make(chan struct{})
	r := &fakeRetriever{sources: defaultSources()}
	g := &fakeGenerator{}
	g.reply = func(int32, string) (string, error) {
		<-release
		return "shared", nil
	}
	o, err := New(r, g, cache.New[Entry](8, time.Hour), WithCoalescing(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const n = 5
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Ask(context.Background(), Request{Query: "fever"})
		}(i)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		r.mu.Lock()
		calls := r.calls
		r.mu.Unlock()
		if calls == n || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Ask[%d] error = %v", i, errs[i])
		}
		if results[i].Answer != "shared" {
			t.Errorf("Ask[%d] answer = %q", i, results[i].Answer)
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("generator calls = %d, want 1", got)
	}
}

func TestAsk_CoalescedWaiterSurvivesLeaderCancel(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	g := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		select {
		case <-release:
			return "shared", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	r := &fakeRetriever{sources: defaultSources()}
	c := cache.New[Entry](8, time.Hour)
	o, err := New(r, g, c, WithCoalescing(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := o.Ask(leaderCtx, Request{Query: "fever"})
		leaderErr <- err
	}()
	waitFor(t, func() bool { return calls.Load() == 1 })

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader err = %v, want context.Canceled", err)
	}

	type outcome struct {
		res Result
		err error
	}
	waiter := make(chan outcome, 1)
	go func() {
		res, err := o.Ask(context.Background(), Request{Query: "fever"})
		waiter <- outcome{res, err}
	}()
	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.calls == 2
	})
	time.Sleep(50 * time.Millisecond)
	close(release)

	got := <-waiter
	if got.err != nil {
		t.Fatalf("waiter err = %v, want the shared answer", got.err)
	}
	if got.res.Answer != "shared" {
		t.Errorf("waiter answer = %q, want shared", got.res.Answer)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
	if c.Info().Size != 1 {
		t.Error("detached generation must still populate the cache")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsk_ConcurrentDistinctQueries(t *testing.T) {
	o, _, _, c := newTestOrchestrator(t)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := "question " + string(rune('a'+i%8))
			if _, err := o.Ask(context.Background(), Request{Query: q}); err != nil {
				t.Errorf("Ask() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
	if size := c.Info().Size; size != 8 {
		t.Errorf("cache size = %d, want 8", size)
	}
}

func TestAsk_LogsThroughMiddleware(t *testing.T) {
	var buf bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("debug", &buf))
	o, _, _, _ := newTestOrchestrator(t, WithMiddleware(mw))
	ctx := context.Background()

	_, _ = o.Ask(ctx, Request{Query: "fever", AuxContext: "HR=80"})
	_, _ = o.Ask(ctx, Request{Query: "fever"})

	out := buf.String()
	for _, want := range []string{`"answer cache miss"`, `"answer cache hit"`, `"stage":"retrieve"`, `"component":"fake-retriever"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s", want)
		}
	}
	if strings.Contains(out, "HR=80") {
		t.Error("auxiliary context leaked into logs")
	}
}
