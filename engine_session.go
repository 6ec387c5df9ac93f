package credlock

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/credlock/credlock/internal"
)

// bindSession mints a fresh opaque token and commits it as the account's
// single current session. A concurrent rebind loses: the optimistic compare
// is retried once against the fresh account version, so the newest login
// always ends up authoritative.
func (e *Engine) bindSession(ctx context.Context, account Account) (string, error) {
	token, err := internal.NewSessionToken()
	if err != nil {
		return "", err
	}

	err = e.directory.UpdateSessionToken(ctx, account.ID, token, account.Version)
	if errors.Is(err, ErrConflict) {
		fresh, ferr := e.directory.GetAccountByID(ctx, account.ID)
		if ferr != nil {
			return "", ferr
		}
		err = e.directory.UpdateSessionToken(ctx, account.ID, token, fresh.Version)
	}
	if err != nil {
		return "", err
	}

	e.metricInc(MetricSessionBound)
	e.emitAudit(ctx, auditActionSessionBound, true, account.UserName, account.ID, nil, nil)
	return token, nil
}

func (e *Engine) sealSession(accountID, token string) (string, error) {
	if e.envelopes == nil {
		return "", nil
	}
	return e.envelopes.Seal(accountID, token)
}

// ValidateSession checks a presented token against the account's current
// session token. A mismatch means another login rebound the session: the
// presenting connection must be signed out, while the account keeps its
// authoritative token. Returns nil only for a live match.
func (e *Engine) ValidateSession(ctx context.Context, accountID, presentedToken string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if presentedToken == "" {
		return ErrSessionInvalid
	}

	account, err := e.directory.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.CurrentSessionToken == "" {
		return ErrSessionInvalid
	}

	if subtle.ConstantTimeCompare([]byte(presentedToken), []byte(account.CurrentSessionToken)) != 1 {
		e.metricInc(MetricSessionMismatch)
		e.emitAudit(ctx, auditActionSessionMismatch, false, account.UserName, account.ID, ErrSessionInvalid, func() map[string]string {
			return map[string]string{"reason": "token_superseded"}
		})
		return ErrSessionInvalid
	}
	return nil
}

// ValidateSignedSession opens a signed envelope and validates the embedded
// token against the account it names. The signature alone is never enough;
// the comparison against the stored current token is what decides.
func (e *Engine) ValidateSignedSession(ctx context.Context, envelope string) (string, error) {
	if e == nil || e.directory == nil {
		return "", ErrEngineNotReady
	}
	if e.envelopes == nil {
		return "", ErrSessionInvalid
	}

	accountID, token, err := e.envelopes.Open(envelope)
	if err != nil {
		return "", ErrSessionInvalid
	}
	if err := e.ValidateSession(ctx, accountID, token); err != nil {
		return "", err
	}
	return accountID, nil
}

// Logout clears the account's current session token. Idempotent: clearing
// an already-empty token succeeds.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	account, err := e.directory.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.CurrentSessionToken == "" {
		return nil
	}

	err = e.directory.UpdateSessionToken(ctx, account.ID, "", account.Version)
	if errors.Is(err, ErrConflict) {
		fresh, ferr := e.directory.GetAccountByID(ctx, account.ID)
		if ferr != nil {
			return ferr
		}
		if fresh.CurrentSessionToken == "" {
			return nil
		}
		err = e.directory.UpdateSessionToken(ctx, account.ID, "", fresh.Version)
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditActionLogout, true, account.UserName, account.ID, nil, nil)
	return nil
}
