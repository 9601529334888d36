package netstatus

import (
	"sync"
	"time"
)

// EffectiveType mirrors the browser Network Information API classes.
type EffectiveType string

const (
	Type4G      EffectiveType = "4g"
	Type3G      EffectiveType = "3g"
	Type2G      EffectiveType = "2g"
	TypeSlow2G  EffectiveType = "slow-2g"
	TypeUnknown EffectiveType = "unknown"
)

// Round-trip thresholds from the Network Information API effective type
// table.
const (
	slow2GThreshold = 2000 * time.Millisecond
	twoGThreshold   = 1400 * time.Millisecond
	threeGThreshold = 270 * time.Millisecond
)

const ewmaWeight = 0.3

// Tracker classifies connection quality from observed request round-trip
// times. Pollers scale their intervals by Multiplier.
type Tracker struct {
	mu       sync.Mutex
	override EffectiveType
	ewma     time.Duration
	samples  int
}

func New() *Tracker {
	return &Tracker{}
}

// NewStatic returns a tracker pinned to a fixed effective type, for
// deployments where probing is not wanted.
func NewStatic(effectiveType EffectiveType) *Tracker {
	return &Tracker{override: effectiveType}
}

func (t *Tracker) Observe(rtt time.Duration) {
	if rtt < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.samples == 0 {
		t.ewma = rtt
	} else {
		t.ewma = time.Duration(ewmaWeight*float64(rtt) + (1-ewmaWeight)*float64(t.ewma))
	}
	t.samples++
}

func (t *Tracker) EffectiveType() EffectiveType {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.override != "" {
		return t.override
	}
	if t.samples == 0 {
		return TypeUnknown
	}
	switch {
	case t.ewma >= slow2GThreshold:
		return TypeSlow2G
	case t.ewma >= twoGThreshold:
		return Type2G
	case t.ewma >= threeGThreshold:
		return Type3G
	default:
		return Type4G
	}
}

// Multiplier returns the polling interval scale for the current effective
// type. Unknown connections poll at the base cadence.
func (t *Tracker) Multiplier() float64 {
	return Multiplier(t.EffectiveType())
}

func Multiplier(effectiveType EffectiveType) float64 {
	switch effectiveType {
	case TypeSlow2G:
		return 2.0
	case Type2G:
		return 1.5
	case Type3G:
		return 1.2
	default:
		return 1.0
	}
}

// ParseEffectiveType maps a config value to an effective type; empty or
// unrecognized values mean "probe".
func ParseEffectiveType(value string) (EffectiveType, bool) {
	switch EffectiveType(value) {
	case Type4G, Type3G, Type2G, TypeSlow2G:
		return EffectiveType(value), true
	default:
		return "", false
	}
}
