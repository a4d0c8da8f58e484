package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/ragcache/cache"
)

// CacheSource exposes a cache's size, counters and policy.
type CacheSource interface {
	Info() cache.Info
	Stats() cache.Stats
	Policy() cache.Policy
}

// NewCacheChecker reports the answer cache. A cache whose policy stores
// nothing is degraded: every request pays for generation.
func NewCacheChecker(src CacheSource) Checker {
	return NewCheckerFunc("cache", func(ctx context.Context) Result {
		info := src.Info()
		stats := src.Stats()
		details := map[string]any{
			"size":        info.Size,
			"capacity":    info.Capacity,
			"hits":        stats.Hits,
			"misses":      stats.Misses,
			"evictions":   stats.Evictions,
			"expirations": stats.Expirations,
			"hit_ratio":   stats.HitRatio(),
			"default_ttl": src.Policy().DefaultTTL.String(),
		}
		if !src.Policy().ShouldCache() {
			return Degraded("answer cache disabled").WithDetails(details)
		}
		return Healthy(fmt.Sprintf("%d/%d entries", info.Size, info.Capacity)).WithDetails(details)
	})
}
