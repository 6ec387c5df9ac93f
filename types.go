package credlock

import (
	"context"
	"time"
)

// Account is the durable account record exchanged with a [UserDirectory].
// It carries only the fields the credential lifecycle reads or writes;
// profile attributes stay with the directory owner.
type Account struct {
	ID                   string
	Email                string
	UserName             string
	PasswordHash         string
	LastPasswordChangeAt time.Time
	PasswordExpiresAt    time.Time
	// CurrentSessionToken holds the single authoritative session token, or ""
	// when no session is bound. A new login overwrites it; earlier sessions
	// die on their next validation.
	CurrentSessionToken string
	TwoFactorEnabled    bool
	// Version is the optimistic-concurrency counter. Directory updates that
	// take an expected version must fail with [ErrConflict] when the stored
	// version differs, and advance it on success.
	Version uint32
}

// PasswordHistoryEntry is one immutable row of the password-history log.
// Entries are append-only and are read newest first.
type PasswordHistoryEntry struct {
	ID           string
	AccountID    string
	PasswordHash string
	CreatedAt    time.Time
}

// UserDirectory is the primary interface callers implement to integrate
// credlock with their account database. Implementations must return
// [ErrAccountNotFound] for unknown ids or emails, and [ErrConflict] from the
// versioned update methods when expectVersion no longer matches the stored
// account version.
type UserDirectory interface {
	GetAccountByID(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)

	// UpdateSessionToken commits a new current session token ("" clears it)
	// with a compare on the account version.
	UpdateSessionToken(ctx context.Context, accountID, token string, expectVersion uint32) error

	// UpdatePasswordHash commits a new password hash together with the policy
	// timestamps, with a compare on the account version.
	UpdatePasswordHash(ctx context.Context, accountID, hash string, changedAt, expiresAt time.Time, expectVersion uint32) error

	SetTwoFactorEnabled(ctx context.Context, accountID string, enabled bool) error

	// RecentPasswordHistory returns at most n history entries for the account,
	// ordered by CreatedAt descending, ties broken by entry id ascending.
	RecentPasswordHistory(ctx context.Context, accountID string, n int) ([]PasswordHistoryEntry, error)

	AppendPasswordHistory(ctx context.Context, entry PasswordHistoryEntry) error
}

// Mailer delivers a message to a destination address. credlock supplies only
// subject and body; transport, formatting, and retries belong to the caller.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmTwoFactor].
//
// When TwoFactorRequired is set, no session was bound yet: a one-time code
// was issued to the account's email and the login completes through
// [Engine.ConfirmTwoFactor] with the same email. Otherwise SessionToken holds
// the freshly bound opaque token, and SignedSession optionally carries the
// same token wrapped in a signed envelope for cookie transport (empty when
// session signing is not configured).
type LoginResult struct {
	AccountID     string
	SessionToken  string
	SignedSession string

	TwoFactorRequired bool
}
