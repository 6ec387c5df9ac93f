package credlock

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/credlock/credlock/internal"
)

// RequestPasswordReset issues a reset token for the account behind the
// given email and mails the challenge to it. The call is deliberately
// silent about whether the email is known: an unknown address does the
// same amount of work, waits a randomized beat, and returns nil, so the
// response gives an enumerating caller nothing to measure.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.directory == nil || e.resets == nil || e.mailer == nil {
		return ErrEngineNotReady
	}

	account, err := e.directory.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		// Fake path. Burn the same entropy and roughly the same time as
		// the real one, then report success.
		if _, genErr := internal.NewResetSecret(); genErr != nil {
			return genErr
		}
		if sleepErr := sleepResetEnumerationDelay(ctx); sleepErr != nil {
			return sleepErr
		}
		e.metricInc(MetricResetRequest)
		e.emitAudit(ctx, auditActionResetRequested, true, email, "", nil, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil
	}

	tokenID := uuid.NewString()
	secret, err := internal.NewResetSecret()
	if err != nil {
		return err
	}

	record := &resetTokenRecord{
		AccountID:  account.ID,
		SecretHash: internal.HashResetSecret(secret),
		ExpiresAt:  e.nowUTC().Add(e.config.PasswordReset.TokenTTL).Unix(),
	}
	if err := e.resets.Save(ctx, tokenID, record, e.config.PasswordReset.Retention); err != nil {
		return ErrBackendUnavailable
	}

	challenge := internal.EncodeResetChallenge(tokenID, secret)
	body := e.resetMailBody(tokenID, challenge)
	if err := e.mailer.Send(ctx, account.Email, e.config.PasswordReset.MailSubject, body); err != nil {
		return ErrBackendUnavailable
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditActionResetRequested, true, account.UserName, account.ID, nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

// ResolvePasswordReset reports whether a token id still refers to a live
// reset request and, if so, whose. Resolving does not consume the token
// and repeated calls on an expired token keep answering
// [ErrResetTokenExpired] for as long as the retention window holds the row.
func (e *Engine) ResolvePasswordReset(ctx context.Context, tokenID string) (string, error) {
	if e == nil || e.resets == nil {
		return "", ErrEngineNotReady
	}
	if tokenID == "" {
		return "", ErrResetTokenNotFound
	}

	record, err := e.resets.Get(ctx, tokenID)
	if err != nil {
		return "", mapResetStoreError(err)
	}
	return record.AccountID, nil
}

// ConfirmPasswordReset validates a presented challenge and installs the
// new password. Policy gates (strength, history reuse) run before the
// token is touched, so a rejected password leaves the token spendable.
// Once the secret matches, the token is consumed atomically; should the
// directory commit then fail, the token is re-saved so the user can retry
// with the same link.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, challenge, newPassword string) error {
	if e == nil || e.directory == nil || e.resets == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	tokenID, secretHash, err := internal.DecodeResetChallenge(challenge)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, "", "", ErrResetTokenInvalid, nil)
		return ErrResetTokenInvalid
	}

	record, err := e.resets.Get(ctx, tokenID)
	if err != nil {
		mapped := mapResetStoreError(err)
		e.metricInc(MetricResetConfirmFailure)
		if errors.Is(mapped, ErrResetTokenNotFound) {
			e.emitAudit(ctx, auditActionResetReplay, false, "", "", mapped, func() map[string]string {
				return map[string]string{"token_id": tokenID}
			})
		} else {
			e.emitAudit(ctx, auditActionResetConfirmed, false, "", "", mapped, nil)
		}
		return mapped
	}

	account, err := e.directory.GetAccountByID(ctx, record.AccountID)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, "", record.AccountID, err, nil)
		return err
	}

	if !isStrongPassword(e.config.Password, newPassword) {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, ErrWeakPassword, nil)
		return ErrWeakPassword
	}

	reused, err := e.isPasswordReused(ctx, account.ID, newPassword)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, err, nil)
		return err
	}
	if reused {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	consumed, err := e.resets.Consume(ctx, tokenID, secretHash, e.config.PasswordReset.MaxAttempts)
	if err != nil {
		mapped := mapResetStoreError(err)
		if errors.Is(mapped, ErrResetAttemptsExceeded) {
			e.metricInc(MetricResetAttemptsExceeded)
		} else {
			e.metricInc(MetricResetConfirmFailure)
		}
		e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, mapped, nil)
		return mapped
	}

	if err := e.commitPassword(ctx, account, newPassword, e.nowUTC()); err != nil {
		// The token was already spent. Put it back so the same link keeps
		// working while the directory recovers.
		if saveErr := e.resets.Save(ctx, tokenID, consumed, e.config.PasswordReset.Retention); saveErr != nil {
			e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, saveErr, func() map[string]string {
				return map[string]string{"reason": "token_restore_failed"}
			})
		}
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditActionResetConfirmed, false, account.UserName, account.ID, err, nil)
		return err
	}

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditActionResetConfirmed, true, account.UserName, account.ID, nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

func (e *Engine) resetMailBody(tokenID, challenge string) string {
	if tpl := e.config.PasswordReset.LinkTemplate; tpl != "" {
		return fmt.Sprintf(tpl, tokenID) + "\n\nReset code: " + challenge
	}
	return "Reset code: " + challenge
}

func mapResetStoreError(err error) error {
	switch {
	case errors.Is(err, errResetNotFound):
		return ErrResetTokenNotFound
	case errors.Is(err, errResetExpired):
		return ErrResetTokenExpired
	case errors.Is(err, errResetSecretMismatch):
		return ErrResetTokenInvalid
	case errors.Is(err, errResetAttemptsExceeded):
		return ErrResetAttemptsExceeded
	default:
		return ErrBackendUnavailable
	}
}

func sleepResetEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
