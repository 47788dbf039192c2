package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins, whatever the reason.
	MetricLoginFailure
	// MetricRegisterSuccess counts created principals.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts registrations rejected for a taken email.
	MetricRegisterDuplicate
	// MetricVerifySuccess counts tokens that passed full verification.
	MetricVerifySuccess
	// MetricVerifyFailure counts tokens rejected anywhere on the verification
	// path.
	MetricVerifyFailure
	// MetricVerifyRevoked counts rejections specifically due to revocation.
	MetricVerifyRevoked
	// MetricRotateSuccess counts refresh rotations that won the transition.
	MetricRotateSuccess
	// MetricRotateReplayed counts rotation attempts on an already revoked
	// session, the replay signal.
	MetricRotateReplayed
	// MetricRotateFailure counts all other rotation failures.
	MetricRotateFailure
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts sign-out-everywhere calls.
	MetricLogoutAll
	// MetricRevocationAdded counts jtis pushed into the revocation store.
	MetricRevocationAdded
	// MetricActionCreated counts minted action tokens.
	MetricActionCreated
	// MetricActionConsumed counts successful single-use redemptions.
	MetricActionConsumed
	// MetricActionConsumeFailure counts failed redemption attempts.
	MetricActionConsumeFailure
	// MetricRateLimited counts requests rejected by the rate window.
	MetricRateLimited
	// MetricQuotaExceeded counts metered actions rejected by the period quota.
	MetricQuotaExceeded
	// MetricTokensIssued counts every signed token minted, both kinds.
	MetricTokensIssued
	// MetricVerifyLatency is the verification latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's in-process counter table. Counters are padded to
// cache-line size; increments are single atomic adds on the hot path.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] table per the config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counting is on.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a verification latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricVerifyLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
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
