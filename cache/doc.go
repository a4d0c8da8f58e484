// Package cache provides the answer cache for retrieval-augmented generation.
//
// It provides a capacity-bounded, time-expiring LRU store, SHA-256-based
// derivation of cache keys from a query and its ordered retrieval sources,
// and TTL policies. Expiry is lazy: entries are removed when a read observes
// them expired or when LRU eviction reaches them. There is no background reaper.
package cache
