package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fixed(name string, r Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return r })
}

func TestAggregator_RegisterOrder(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})
	a.Register(fixed("cache", Healthy("")))
	a.Register(fixed("retriever", Healthy("")))
	a.Register(fixed("generator", Healthy("")))
	a.Register(fixed("cache", Degraded("")))

	got := a.CheckerNames()
	want := []string{"cache", "retriever", "generator"}
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	a.Unregister("retriever")
	if names := a.CheckerNames(); len(names) != 2 || names[1] != "generator" {
		t.Errorf("after Unregister names = %v", names)
	}
	if r, _ := a.Check(context.Background(), "cache"); r.Status != StatusDegraded {
		t.Error("Register must replace an existing checker")
	}
}

func TestAggregator_Check(t *testing.T) {
	a := NewAggregator(AggregatorConfig{})
	a.Register(fixed("cache", Healthy("ok")))

	r, err := a.Check(context.Background(), "cache")
	if err != nil || r.Status != StatusHealthy {
		t.Errorf("Check() = %+v, %v", r, err)
	}
	if _, err := a.Check(context.Background(), "nope"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("err = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAllRunsConcurrently(t *testing.T) {
	a := NewAggregator(AggregatorConfig{Timeout: 5 * time.Second})
	var running, peak atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		a.Register(NewCheckerFunc(name, func(context.Context) Result {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
			return Healthy("")
		}))
	}

	results := a.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want checks to overlap", peak.Load())
	}
	for name, r := range results {
		if r.Duration <= 0 {
			t.Errorf("%s: duration not recorded", name)
		}
	}
}

func TestAggregator_MaxParallel(t *testing.T) {
	a := NewAggregator(AggregatorConfig{MaxParallel: 1})
	var running, peak atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		a.Register(NewCheckerFunc(name, func(context.Context) Result {
			if n := running.Add(1); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return Healthy("")
		}))
	}
	a.CheckAll(context.Background())
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}

func TestAggregator_Timeout(t *testing.T) {
	a := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	a.Register(NewCheckerFunc("slow", func(ctx context.Context) Result {
		time.Sleep(time.Second)
		return Healthy("")
	}))

	start := time.Now()
	r := a.CheckAll(context.Background())["slow"]
	if time.Since(start) > 500*time.Millisecond {
		t.Error("CheckAll waited for a check past the deadline")
	}
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("result = %+v, want timeout", r)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]Result{"a": Healthy(""), "b": Healthy("")}, StatusHealthy},
		{"degraded", map[string]Result{"a": Healthy(""), "b": Degraded("")}, StatusDegraded},
		{"unhealthy wins", map[string]Result{"a": Degraded(""), "b": Unhealthy("", nil)}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
