package credlock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/credlock/credlock/password"
	"github.com/google/uuid"
)

// IsStrongPassword reports whether a candidate password satisfies the
// strength policy: minimum length, at least one lowercase letter, one
// uppercase letter, one digit, and one character from the configured
// special set, with no characters outside that alphabet.
func (e *Engine) IsStrongPassword(candidate string) bool {
	if e == nil {
		return false
	}
	return isStrongPassword(e.config.Password, candidate)
}

func isStrongPassword(cfg PasswordConfig, candidate string) bool {
	var length, lower, upper, digit, special int

	for _, r := range candidate {
		length++
		switch {
		case r >= 'a' && r <= 'z':
			lower++
		case r >= 'A' && r <= 'Z':
			upper++
		case r >= '0' && r <= '9':
			digit++
		case strings.ContainsRune(cfg.SpecialChars, r):
			special++
		default:
			// Anything outside the allowed alphabet disqualifies outright.
			return false
		}
	}

	return length >= cfg.MinLength && lower > 0 && upper > 0 && digit > 0 && special > 0
}

// canChangePassword gates on the minimum interval since the last change.
// A zero interval leaves the hook in place but never fires.
func (e *Engine) canChangePassword(account Account, now time.Time) bool {
	if e.config.Password.MinChangeInterval <= 0 {
		return true
	}
	return !now.Before(account.LastPasswordChangeAt.Add(e.config.Password.MinChangeInterval))
}

func passwordExpired(account Account, now time.Time) bool {
	return now.After(account.PasswordExpiresAt)
}

// isPasswordReused checks the candidate against the newest history entries.
// Any verification outcome other than Failed counts as reuse — a hash that
// matches but wants a parameter upgrade is still the same password. Hasher
// errors (corrupt history rows) propagate; they are never read as "not
// reused".
func (e *Engine) isPasswordReused(ctx context.Context, accountID, candidate string) (bool, error) {
	entries, err := e.directory.RecentPasswordHistory(ctx, accountID, e.config.Password.HistoryDepth)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		result, err := e.hasher.Verify(candidate, entry.PasswordHash)
		if err != nil {
			return false, err
		}
		if result != password.Failed {
			return true, nil
		}
	}
	return false, nil
}

// commitPassword hashes the new password, commits hash and rotation
// timestamps with an optimistic version compare (one internal retry), and
// appends the history entry. History append happens after the account
// commit; a crash between the two loses one history row, never a password.
func (e *Engine) commitPassword(ctx context.Context, account Account, newPassword string, now time.Time) error {
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	expiresAt := now.Add(e.config.Password.MaxAge)

	err = e.directory.UpdatePasswordHash(ctx, account.ID, hash, now, expiresAt, account.Version)
	if errors.Is(err, ErrConflict) {
		fresh, ferr := e.directory.GetAccountByID(ctx, account.ID)
		if ferr != nil {
			return ferr
		}
		err = e.directory.UpdatePasswordHash(ctx, account.ID, hash, now, expiresAt, fresh.Version)
	}
	if err != nil {
		return err
	}

	return e.directory.AppendPasswordHistory(ctx, PasswordHistoryEntry{
		ID:           uuid.NewString(),
		AccountID:    account.ID,
		PasswordHash: hash,
		CreatedAt:    now,
	})
}

// ChangePassword rotates an account's password under the full policy:
// minimum interval, expiration, strength, history reuse, and verification
// of the current password. Each gate reports its own distinct error.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	account, err := e.directory.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	now := e.nowUTC()

	if !e.canChangePassword(account, now) {
		return ErrPasswordChangeTooSoon
	}
	if passwordExpired(account, now) {
		return ErrPasswordExpired
	}
	if !isStrongPassword(e.config.Password, newPassword) {
		return ErrWeakPassword
	}

	reused, err := e.isPasswordReused(ctx, account.ID, newPassword)
	if err != nil {
		return err
	}
	if reused {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditActionPasswordChangeReuse, false, account.UserName, account.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	result, err := e.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return err
	}
	if result == password.Failed {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditActionPasswordChangeFailed, false, account.UserName, account.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if err := e.commitPassword(ctx, account, newPassword, now); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditActionPasswordChangeFailed, false, account.UserName, account.ID, err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditActionPasswordChange, true, account.UserName, account.ID, nil, nil)
	return nil
}
