package credlock

import (
	"context"
	"time"
)

const (
	auditActionLoginSuccess         = "login_success"
	auditActionLoginFailure         = "login_failure"
	auditActionTwoFactorIssued      = "two_factor_code_issued"
	auditActionTwoFactorSuccess     = "two_factor_success"
	auditActionTwoFactorFailure     = "two_factor_failure"
	auditActionTwoFactorEnabled     = "two_factor_enabled"
	auditActionTwoFactorDisabled    = "two_factor_disabled"
	auditActionSessionBound         = "session_bound"
	auditActionSessionMismatch      = "session_mismatch"
	auditActionLogout               = "logout"
	auditActionPasswordChange       = "password_change_success"
	auditActionPasswordChangeReuse  = "password_change_reuse_attempt"
	auditActionPasswordChangeFailed = "password_change_failure"
	auditActionResetRequested       = "password_reset_request"
	auditActionResetConfirmed       = "password_reset_confirm"
	auditActionResetReplay          = "password_reset_replay"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	userName string,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		UserName:  userName,
		Action:    action,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

// Audit appends a free-form audit record for the named user. It is
// best-effort: a full buffer or failing sink never surfaces to the caller —
// audit recording must not block the primary action. The outer page layer
// uses this for actions the engine does not emit itself.
func (e *Engine) Audit(ctx context.Context, userName, action string) {
	e.emitAudit(ctx, action, true, userName, "", nil, nil)
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
