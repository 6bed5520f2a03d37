package goFactor

import (
	"time"

	"github.com/MrEthical07/goFactor/internal/metrics"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricTwoFactorRequired
	MetricFactorSuccess
	MetricFactorFailure
	// MetricRemoteUnavailable counts transport failures to Duo or Yubico.
	MetricRemoteUnavailable
	MetricStampMismatch
	// MetricCounterReplay counts public-key assertions whose counter did
	// not advance. Each one flags a credential compromised.
	MetricCounterReplay
	MetricRememberIssued
	MetricRememberUsed
	MetricDeviceCreated
	MetricChallengeIssued
	// MetricSignInLatency is the only histogram. It covers SignIn and
	// VerifyFactor, failure delay included.
	MetricSignInLatency
	metricIDCount
)

// Metrics is a lock-free counter block. A nil or disabled Metrics ignores
// every call.
type Metrics struct {
	set *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		set: metrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms, int(MetricSignInLatency)),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.set.LatencyEnabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.set.Inc(int(id))
}

// Observe records d in the histogram for id. Only MetricSignInLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.set.Value(int(id))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricSignInLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.LatencyEnabled() {
		s.Histograms[MetricSignInLatency] = m.set.Buckets(int(MetricSignInLatency))
	}
	return s
}

// HistogramBucketCount is the number of latency buckets, the last being +Inf.
const HistogramBucketCount = metrics.BucketCount
