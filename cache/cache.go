package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCapacityExceeded marks a broken size invariant. It is a programming
// defect and is raised by panic, never returned.
var ErrCapacityExceeded = errors.New("cache: size exceeds capacity")

// Cache is the interface for the answer cache.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use. Every
//     operation is atomic with respect to every other.
//   - Errors: no operation fails; Get returns (zero, false) on miss or expiry.
//   - Expiry: an expired entry is never returned and is removed when observed.
type Cache[V any] interface {
	// Get retrieves a live value and marks it most recently used.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores a value with the default TTL.
	Set(ctx context.Context, key string, value V)

	// SetWithTTL stores a value with the given TTL. TTL<=0 stores nothing.
	SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration)

	// Delete removes a cached value. Idempotent.
	Delete(ctx context.Context, key string)

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Info reports the current size and capacity.
	Info() Info
}

// Info is a read-only snapshot of cache occupancy.
//
// Size counts stored entries, including dormant expired entries that no
// read has observed yet.
type Info struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// Stats contains cumulative cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// HitRatio returns hits/(hits+misses), or 0 when nothing was read.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
