package credlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/credlock/credlock/internal"
)

// issueTwoFactorChallenge generates a one-time code, stores its digest
// keyed by the account email, and hands the code to the mailer. When the
// send fails the challenge is withdrawn: the user was never given a code,
// so none may remain verifiable.
func (e *Engine) issueTwoFactorChallenge(ctx context.Context, account Account) error {
	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return err
	}

	ttl := e.config.TwoFactor.ChallengeTTL
	challenge := &twoFactorChallenge{
		AccountID: account.ID,
		CodeHash:  internal.HashSecretBytes([]byte(code)),
		ExpiresAt: e.nowUTC().Add(ttl).Unix(),
	}

	if err := e.twoFactor.Save(ctx, account.Email, challenge, ttl); err != nil {
		return ErrBackendUnavailable
	}

	body := fmt.Sprintf("Your code is: %s", code)
	if err := e.mailer.Send(ctx, account.Email, e.config.TwoFactor.MailSubject, body); err != nil {
		_ = e.twoFactor.Delete(ctx, account.Email)
		return ErrBackendUnavailable
	}

	e.metricInc(MetricTwoFactorIssued)
	e.emitAudit(ctx, auditActionTwoFactorIssued, true, account.UserName, account.ID, nil, nil)
	return nil
}

// ConfirmTwoFactor verifies the code issued for a pending login and, on
// success, binds the session exactly as a password-only login would. The
// challenge is consumed atomically: a code that verified once can never
// verify again, and a replay reports the same generic failure as a wrong
// or expired code.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, email, code string) (*LoginResult, error) {
	if e == nil || e.directory == nil || e.twoFactor == nil {
		return nil, ErrEngineNotReady
	}
	if code == "" {
		return nil, ErrTwoFactorCodeInvalid
	}

	challenge, err := e.twoFactor.Consume(ctx, email, internal.HashSecretBytes([]byte(code)), e.config.TwoFactor.MaxAttempts)
	if err != nil {
		mapped := mapTwoFactorStoreError(err)
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditActionTwoFactorFailure, false, email, "", mapped, nil)
		return nil, mapped
	}

	account, err := e.directory.GetAccountByID(ctx, challenge.AccountID)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditActionTwoFactorFailure, false, email, challenge.AccountID, err, nil)
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditActionTwoFactorSuccess, true, account.UserName, account.ID, nil, nil)

	return e.completeLogin(ctx, account)
}

// EnableTwoFactor turns on the second-factor requirement for an account.
// Takes effect on the next login.
func (e *Engine) EnableTwoFactor(ctx context.Context, accountID string) error {
	return e.setTwoFactor(ctx, accountID, true)
}

// DisableTwoFactor turns the second-factor requirement off.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string) error {
	return e.setTwoFactor(ctx, accountID, false)
}

func (e *Engine) setTwoFactor(ctx context.Context, accountID string, enabled bool) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	account, err := e.directory.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.directory.SetTwoFactorEnabled(ctx, accountID, enabled); err != nil {
		return err
	}

	action := auditActionTwoFactorEnabled
	if !enabled {
		action = auditActionTwoFactorDisabled
	}
	e.emitAudit(ctx, action, true, account.UserName, account.ID, nil, nil)
	return nil
}

func mapTwoFactorStoreError(err error) error {
	switch {
	case errors.Is(err, errTwoFactorNotFound),
		errors.Is(err, errTwoFactorExpired),
		errors.Is(err, errTwoFactorMismatch):
		// Deliberately indistinguishable to the caller.
		return ErrTwoFactorCodeInvalid
	case errors.Is(err, errTwoFactorExceeded):
		return ErrTwoFactorAttemptsExceeded
	default:
		return ErrBackendUnavailable
	}
}
