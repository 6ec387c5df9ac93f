package credlock

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts fully completed logins (session bound).
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected login attempts.
	MetricLoginFailure
	// MetricTwoFactorIssued counts second-factor codes sent out.
	MetricTwoFactorIssued
	// MetricTwoFactorSuccess counts verified second-factor codes.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts expired, mismatched, or replayed codes.
	MetricTwoFactorFailure
	// MetricSessionBound counts session tokens minted.
	MetricSessionBound
	// MetricSessionMismatch counts validations that hit a stale token.
	MetricSessionMismatch
	// MetricLogout counts explicit session clears.
	MetricLogout
	// MetricPasswordChangeSuccess counts committed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeReuseRejected counts changes blocked by history.
	MetricPasswordChangeReuseRejected
	// MetricPasswordChangeFailure counts changes blocked for other reasons.
	MetricPasswordChangeFailure
	// MetricResetRequest counts reset tokens issued (including the silent
	// path for unknown emails, which issues nothing but still counts).
	MetricResetRequest
	// MetricResetConfirmSuccess counts consumed reset tokens.
	MetricResetConfirmSuccess
	// MetricResetConfirmFailure counts rejected reset confirmations.
	MetricResetConfirmFailure
	// MetricResetAttemptsExceeded counts tokens invalidated by attempts.
	MetricResetAttemptsExceeded
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free in-process counters. All methods are safe for
// concurrent use; a nil or disabled Metrics is inert.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
