package credlock

import (
	"context"

	"github.com/credlock/credlock/password"
)

// Login authenticates an email/password pair. For accounts without a second
// factor it binds a fresh session and returns the token. For accounts with
// one it issues a one-time code to the account's email and returns a result
// with TwoFactorRequired set; the session is only bound once
// [Engine.ConfirmTwoFactor] verifies the code.
//
// Unknown emails and wrong passwords both come back as
// [ErrInvalidCredentials]. An expired password surfaces as
// [ErrPasswordExpired] so the caller can route to a forced change.
func (e *Engine) Login(ctx context.Context, email, candidate string) (*LoginResult, error) {
	if e == nil || e.directory == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.directory.GetAccountByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditActionLoginFailure, false, email, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil, ErrInvalidCredentials
	}

	result, err := e.hasher.Verify(candidate, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if result == password.Failed {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditActionLoginFailure, false, account.UserName, account.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if result == password.MatchNeedsRehash && e.config.Password.UpgradeOnLogin {
		e.rehashPassword(ctx, account, candidate)
	}

	if passwordExpired(account, e.nowUTC()) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditActionLoginFailure, false, account.UserName, account.ID, ErrPasswordExpired, nil)
		return nil, ErrPasswordExpired
	}

	if account.TwoFactorEnabled {
		if err := e.issueTwoFactorChallenge(ctx, account); err != nil {
			return nil, err
		}
		return &LoginResult{
			AccountID:         account.ID,
			TwoFactorRequired: true,
		}, nil
	}

	return e.completeLogin(ctx, account)
}

// completeLogin binds the session and assembles the result. Shared by the
// direct path and the post-2FA path.
func (e *Engine) completeLogin(ctx context.Context, account Account) (*LoginResult, error) {
	token, err := e.bindSession(ctx, account)
	if err != nil {
		return nil, err
	}

	sealed, err := e.sealSession(account.ID, token)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditActionLoginSuccess, true, account.UserName, account.ID, nil, nil)

	return &LoginResult{
		AccountID:     account.ID,
		SessionToken:  token,
		SignedSession: sealed,
	}, nil
}

// rehashPassword upgrades a stored hash after a successful verification
// against weaker parameters. Best-effort: a conflict or store failure leaves
// the old hash in place, the login proceeds either way.
func (e *Engine) rehashPassword(ctx context.Context, account Account, candidate string) {
	hash, err := e.hasher.Hash(candidate)
	if err != nil {
		return
	}
	_ = e.directory.UpdatePasswordHash(
		ctx,
		account.ID,
		hash,
		account.LastPasswordChangeAt,
		account.PasswordExpiresAt,
		account.Version,
	)
}
