package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// LRU is an in-memory cache with per-entry TTL and least-recently-used
// eviction. The front of the recency list is the most recently used entry.
type LRU[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	ll       *list.List
	capacity int
	policy   Policy
	now      func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	now    func() time.Time
	maxTTL time.Duration
}

// WithClock replaces time.Now as the cache's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxTTL clamps every TTL to max. Zero disables clamping.
func WithMaxTTL(max time.Duration) Option {
	return func(o *options) {
		o.maxTTL = max
	}
}

// New creates an LRU holding at most capacity live entries.
// A capacity <= 0 yields a cache that never stores anything.
func New[V any](capacity int, defaultTTL time.Duration, opts ...Option) *LRU[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 0 {
		capacity = 0
	}
	return &LRU[V]{
		items:    make(map[string]*list.Element, capacity),
		ll:       list.New(),
		capacity: capacity,
		policy:   Policy{Capacity: capacity, DefaultTTL: defaultTTL, MaxTTL: o.maxTTL},
		now:      o.now,
	}
}

// NewFromPolicy creates an LRU from a Policy.
func NewFromPolicy[V any](p Policy, opts ...Option) *LRU[V] {
	return New[V](p.Capacity, p.DefaultTTL, append([]Option{WithMaxTTL(p.MaxTTL)}, opts...)...)
}

// Get retrieves a value. A value observed expired is removed and reported as a miss.
func (c *LRU[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if !c.now().Before(ent.expiresAt) {
		c.removeElement(elem)
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	}

	c.ll.MoveToFront(elem)
	c.hits.Add(1)
	return ent.value, true
}

// Set stores a value with the default TTL.
func (c *LRU[V]) Set(ctx context.Context, key string, value V) {
	c.SetWithTTL(ctx, key, value, c.policy.DefaultTTL)
}

// SetWithTTL stores a value with the given TTL, clamped to the max TTL if one
// is set. TTL<=0 means the value is already expired: nothing is stored and
// any existing entry for key is removed.
func (c *LRU[V]) SetWithTTL(_ context.Context, key string, value V, ttl time.Duration) {
	if ttl > 0 {
		ttl = c.policy.EffectiveTTL(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if elem, ok := c.items[key]; ok {
		if ttl <= 0 {
			c.removeElement(elem)
			return
		}
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = c.now().Add(ttl)
		c.ll.MoveToFront(elem)
		return
	}

	if ttl <= 0 {
		return
	}

	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions.Add(1)
		}
	}

	c.items[key] = c.ll.PushFront(&entry[V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})

	if c.ll.Len() > c.capacity {
		panic(fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, c.ll.Len(), c.capacity))
	}
}

// Delete removes a value from the cache. Idempotent - no effect on miss.
func (c *LRU[V]) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes every entry. Counters are kept.
func (c *LRU[V]) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.ll.Init()
}

// Info returns the current size and capacity. It does not sweep expired entries.
func (c *LRU[V]) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Info{Size: c.ll.Len(), Capacity: c.capacity}
}

// Stats returns cumulative hit, miss, eviction and expiration counts.
func (c *LRU[V]) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Policy returns the cache's capacity and TTL policy.
func (c *LRU[V]) Policy() Policy {
	return c.policy
}

// removeElement must be called with c.mu held.
func (c *LRU[V]) removeElement(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}

// Ensure LRU implements Cache
var _ Cache[string] = (*LRU[string])(nil)
