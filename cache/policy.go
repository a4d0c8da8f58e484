package cache

import (
	"errors"
	"time"
)

// Policy sizes the answer cache and bounds entry lifetimes.
type Policy struct {
	Capacity   int           `yaml:"capacity"`    // entries kept; 0 stores nothing
	DefaultTTL time.Duration `yaml:"default_ttl"` // lifetime when a write names none
	MaxTTL     time.Duration `yaml:"max_ttl"`     // ceiling for overrides; 0 is unbounded
}

// DefaultPolicy keeps 512 answers for two hours, overridable up to a day.
func DefaultPolicy() Policy {
	return Policy{Capacity: 512, DefaultTTL: 2 * time.Hour, MaxTTL: 24 * time.Hour}
}

func NoCachePolicy() Policy { return Policy{} }

// ShouldCache reports whether writes under p can store anything.
func (p Policy) ShouldCache() bool {
	return p.Capacity > 0 && p.DefaultTTL > 0
}

// EffectiveTTL resolves a per-write override: non-positive means DefaultTTL,
// and the result never exceeds a set MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if override > 0 {
		ttl = override
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return ttl
}

var (
	errNegativeCapacity = errors.New("cache: capacity must not be negative")
	errNegativeTTL      = errors.New("cache: ttl must not be negative")
	errDefaultAboveMax  = errors.New("cache: default ttl exceeds max ttl")
)

// Validate rejects negative values and a default TTL above the maximum.
func (p Policy) Validate() error {
	switch {
	case p.Capacity < 0:
		return errNegativeCapacity
	case p.DefaultTTL < 0 || p.MaxTTL < 0:
		return errNegativeTTL
	case p.MaxTTL > 0 && p.DefaultTTL > p.MaxTTL:
		return errDefaultAboveMax
	}
	return nil
}
