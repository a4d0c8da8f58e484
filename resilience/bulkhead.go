package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of calls allowed in flight. Default: 10
	MaxConcurrent int

	// MaxWait bounds the wait for a free slot. Zero fails immediately.
	MaxWait time.Duration
}

// Bulkhead caps concurrent calls to a backend so a slow dependency cannot
// absorb every request goroutine.
type Bulkhead struct {
	size    int64
	maxWait time.Duration
	sem     *semaphore.Weighted

	active   atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

func NewBulkhead(config BulkheadConfig) *Bulkhead {
	size := int64(config.MaxConcurrent)
	if size <= 0 {
		size = 10
	}
	return &Bulkhead{size: size, maxWait: config.MaxWait, sem: semaphore.NewWeighted(size)}
}

// Acquire takes a slot. It returns ErrBulkheadFull when no slot frees up
// within MaxWait, or the context error if ctx ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.enter()
		return nil
	}
	if b.maxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.rejected.Add(1)
		return ErrBulkheadFull
	}
	b.enter()
	return nil
}

// Release frees a slot taken by Acquire. Extra calls are ignored.
func (b *Bulkhead) Release() {
	for {
		n := b.active.Load()
		if n == 0 {
			return
		}
		if b.active.CompareAndSwap(n, n-1) {
			b.sem.Release(1)
			return
		}
	}
}

func (b *Bulkhead) enter() {
	n := b.active.Add(1)
	for p := b.peak.Load(); n > p; p = b.peak.Load() {
		if b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// BulkheadMetrics is a point-in-time view of a Bulkhead.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     int(b.peak.Load()),
		Available:     int(b.size) - active,
		MaxConcurrent: int(b.size),
		Rejected:      b.rejected.Load(),
	}
}
