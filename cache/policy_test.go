package cache

import (
	"testing"
	"time"
)

func TestPolicy_EffectiveTTL(t *testing.T) {
	p := Policy{
		Capacity:   8,
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     10 * time.Minute,
	}

	tests := []struct {
		name     string
		override time.Duration
		want     time.Duration
	}{
		{"zero uses default", 0, 5 * time.Minute},
		{"negative uses default", -time.Second, 5 * time.Minute},
		{"override within max", 3 * time.Minute, 3 * time.Minute},
		{"override clamped", 15 * time.Minute, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EffectiveTTL(tt.override); got != tt.want {
				t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.override, got, tt.want)
			}
		})
	}
}

func TestPolicy_NoMaxTTL(t *testing.T) {
	p := Policy{Capacity: 1, DefaultTTL: time.Minute}

	got := p.EffectiveTTL(48 * time.Hour)
	if got != 48*time.Hour {
		t.Errorf("EffectiveTTL(48h) = %v, want 48h when MaxTTL=0", got)
	}
}

func TestPolicy_ShouldCache(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   bool
	}{
		{"default", DefaultPolicy(), true},
		{"no cache", NoCachePolicy(), false},
		{"zero capacity", Policy{DefaultTTL: time.Minute}, false},
		{"zero ttl", Policy{Capacity: 4}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ShouldCache(); got != tt.want {
				t.Errorf("ShouldCache() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"empty", Policy{}, false},
		{"negative capacity", Policy{Capacity: -1}, true},
		{"negative ttl", Policy{Capacity: 1, DefaultTTL: -time.Second}, true},
		{"default above max", Policy{Capacity: 1, DefaultTTL: time.Hour, MaxTTL: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Capacity != 512 {
		t.Errorf("Capacity = %d, want 512", p.Capacity)
	}
	if p.DefaultTTL != 2*time.Hour {
		t.Errorf("DefaultTTL = %v, want 2h", p.DefaultTTL)
	}
}
