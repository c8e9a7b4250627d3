package policy

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Policy is the per-tenant booking behaviour.
type Policy struct {
	// AutoConfirm books straight into Confirmed instead of Pending.
	AutoConfirm bool
	// ReminderOffsets are durations before start at which a reminder is requested.
	ReminderOffsets []time.Duration
}

type Provider interface {
	BookingPolicy(ctx context.Context, tenantID string) (Policy, error)
}

// DefaultReminderOffsets is a single reminder one day ahead.
var DefaultReminderOffsets = []time.Duration{24 * time.Hour}

// StaticProvider serves one default policy with optional per-tenant overrides.
type StaticProvider struct {
	mu        sync.RWMutex
	def       Policy
	overrides map[string]Policy
}

func NewStaticProvider(def Policy) *StaticProvider {
	if len(def.ReminderOffsets) == 0 {
		def.ReminderOffsets = DefaultReminderOffsets
	}
	def.ReminderOffsets = normalize(def.ReminderOffsets)
	return &StaticProvider{def: def, overrides: map[string]Policy{}}
}

// OffsetsFromMinutes converts configured minutes, dropping non-positive values.
func OffsetsFromMinutes(mins []int) []time.Duration {
	out := make([]time.Duration, 0, len(mins))
	for _, m := range mins {
		if m > 0 {
			out = append(out, time.Duration(m)*time.Minute)
		}
	}
	return out
}

func (p *StaticProvider) Set(tenantID string, pol Policy) {
	pol.ReminderOffsets = normalize(pol.ReminderOffsets)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[tenantID] = pol
}

func (p *StaticProvider) BookingPolicy(_ context.Context, tenantID string) (Policy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pol, ok := p.overrides[tenantID]; ok {
		return pol, nil
	}
	return p.def, nil
}

// normalize sorts offsets largest first and removes duplicates and non-positive values.
func normalize(in []time.Duration) []time.Duration {
	out := slices.DeleteFunc(slices.Clone(in), func(d time.Duration) bool { return d <= 0 })
	slices.Sort(out)
	slices.Reverse(out)
	return slices.Compact(out)
}
