package zuauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricNonceIssued MetricID = iota
	MetricAuthSuccess
	MetricAuthMissingPayload
	MetricAuthInvalidProof
	MetricAuthUntrustedSigner
	MetricAuthNonceMismatch
	MetricAuthMissingNullifier
	// MetricReplayDetected counts proofs rejected because their nullifier was
	// already accepted, including lost claim races.
	MetricReplayDetected
	MetricAuthUnsupportedEvent
	MetricAuthInternalError
	MetricNullifierReleased
	MetricRateLimitHit
	MetricLogout
	// MetricVerifyLatency is the only histogram: proof verification time.
	MetricVerifyLatency
	metricIDCount
)

// verifyBucketBounds are the upper bounds of the verification latency
// buckets. Anything slower lands in the final overflow bucket.
var verifyBucketBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const verifyBucketCount = len(verifyBucketBounds) + 1

// counter sits alone on its cache line so hot counters do not false-share.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters.
type Metrics struct {
	counting bool
	timing   bool
	counters [metricIDCount]counter
	verify   [verifyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		counting: cfg.Enabled,
		timing:   cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.counting }

// Inc adds one to id. It is a no-op on a nil or disabled Metrics.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d against the verification latency histogram. Other ids
// carry no histogram and are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.timing || id != MetricVerifyLatency {
		return
	}
	m.verify[verifyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot copies every counter with atomic loads; it never blocks writers.
// A disabled Metrics returns empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := range MetricVerifyLatency {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.timing {
		buckets := make([]uint64, verifyBucketCount)
		for i := range buckets {
			buckets[i] = m.verify[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}
	return s
}

// verifyBucket compares at millisecond resolution, so 5.9ms still counts
// toward the 5ms bucket.
func verifyBucket(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range verifyBucketBounds {
		if d <= bound {
			return i
		}
	}
	return len(verifyBucketBounds)
}
