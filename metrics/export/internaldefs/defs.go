package internaldefs

import (
	credlock "github.com/credlock/credlock"
)

// CounterDef names one engine counter for the exporter packages. Instances
// are configured at init time and treated as immutable afterwards.
type CounterDef struct {
	ID   credlock.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter to its exported name. The order
// here is the order metrics are rendered in.
var CounterDefs = []CounterDef{
	{ID: credlock.MetricLoginSuccess, Name: "credlock_login_success_total", Help: "Successful login attempts."},
	{ID: credlock.MetricLoginFailure, Name: "credlock_login_failure_total", Help: "Failed login attempts."},
	{ID: credlock.MetricTwoFactorIssued, Name: "credlock_two_factor_issued_total", Help: "Second-factor codes issued."},
	{ID: credlock.MetricTwoFactorSuccess, Name: "credlock_two_factor_success_total", Help: "Successful second-factor confirmations."},
	{ID: credlock.MetricTwoFactorFailure, Name: "credlock_two_factor_failure_total", Help: "Failed second-factor confirmations."},
	{ID: credlock.MetricSessionBound, Name: "credlock_session_bound_total", Help: "Session tokens minted."},
	{ID: credlock.MetricSessionMismatch, Name: "credlock_session_mismatch_total", Help: "Session validations that hit a superseded token."},
	{ID: credlock.MetricLogout, Name: "credlock_logout_total", Help: "Explicit session clears."},
	{ID: credlock.MetricPasswordChangeSuccess, Name: "credlock_password_change_success_total", Help: "Committed password changes."},
	{ID: credlock.MetricPasswordChangeReuseRejected, Name: "credlock_password_change_reuse_rejected_total", Help: "Password changes rejected by the history gate."},
	{ID: credlock.MetricPasswordChangeFailure, Name: "credlock_password_change_failure_total", Help: "Password changes rejected for other reasons."},
	{ID: credlock.MetricResetRequest, Name: "credlock_password_reset_request_total", Help: "Password reset requests."},
	{ID: credlock.MetricResetConfirmSuccess, Name: "credlock_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: credlock.MetricResetConfirmFailure, Name: "credlock_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: credlock.MetricResetAttemptsExceeded, Name: "credlock_password_reset_attempts_exceeded_total", Help: "Reset tokens invalidated by the attempt cap."},
}
