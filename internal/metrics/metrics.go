package metrics

import (
	"sync/atomic"
	"time"
)

const (
	// BucketCount is the number of latency buckets, the last being +Inf.
	BucketCount   = 8
	cacheLineSize = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Set is a fixed-size block of counters indexed by small integers. Slots
// marked as latency slots also carry a histogram.
type Set struct {
	enabled  bool
	latency  bool
	counters []paddedCounter
	hists    []histogram
	timed    []bool
}

// New allocates n counter slots. latencySlots lists the slots that accept
// Observe calls; histograms are only recorded when latency is true.
func New(n int, enabled, latency bool, latencySlots ...int) *Set {
	if n < 0 {
		n = 0
	}
	s := &Set{
		enabled:  enabled,
		latency:  enabled && latency,
		counters: make([]paddedCounter, n),
		hists:    make([]histogram, n),
		timed:    make([]bool, n),
	}
	for _, slot := range latencySlots {
		if slot >= 0 && slot < n {
			s.timed[slot] = true
		}
	}
	return s
}

func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Set) LatencyEnabled() bool {
	return s != nil && s.latency
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.counters)
}

func (s *Set) Inc(slot int) {
	if s == nil || !s.enabled || slot < 0 || slot >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[slot].value, 1)
}

// Observe records d for a latency slot. Other slots are ignored.
func (s *Set) Observe(slot int, d time.Duration) {
	if s == nil || !s.latency || slot < 0 || slot >= len(s.hists) || !s.timed[slot] {
		return
	}
	atomic.AddUint64(&s.hists[slot].buckets[BucketIndex(d)], 1)
}

func (s *Set) Value(slot int) uint64 {
	if s == nil || slot < 0 || slot >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[slot].value)
}

// Timed reports whether slot carries a histogram.
func (s *Set) Timed(slot int) bool {
	return s != nil && slot >= 0 && slot < len(s.timed) && s.timed[slot]
}

// Buckets returns a copy of the non-cumulative bucket counts for slot.
func (s *Set) Buckets(slot int) []uint64 {
	if !s.Timed(slot) {
		return nil
	}
	out := make([]uint64, BucketCount)
	for i := range out {
		out[i] = atomic.LoadUint64(&s.hists[slot].buckets[i])
	}
	return out
}

// BucketIndex maps a duration to its bucket: <=5ms, 10, 25, 50, 100, 250,
// 500ms, then +Inf. Remote factor calls make the upper buckets useful.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
