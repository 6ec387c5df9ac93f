package credlock

import (
	"time"

	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
)

// Engine exposes every credential-lifecycle operation: login with an
// optional second factor, session binding and validation, password change
// under policy, and password reset. Construct one through [Builder.Build];
// Engine instances are immutable afterwards and safe for concurrent use.
type Engine struct {
	config    Config
	directory UserDirectory
	mailer    Mailer
	hasher    *password.Hasher
	twoFactor twoFactorStore
	resets    resetTokenStore
	envelopes *jwt.Manager
	audit     *auditDispatcher
	metrics   *Metrics

	// now is swapped in tests; everything time-sensitive goes through it.
	now func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) nowUTC() time.Time {
	if e == nil || e.now == nil {
		return time.Now().UTC()
	}
	return e.now().UTC()
}
