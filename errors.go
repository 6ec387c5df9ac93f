package credlock

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before the
	// engine was fully constructed through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is returned for an unknown email or a password that
	// does not verify. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountNotFound is returned when an account id resolves to nothing.
	ErrAccountNotFound = errors.New("account not found")
	// ErrWeakPassword is returned when a candidate password fails the strength
	// policy (length, character classes, allowed alphabet).
	ErrWeakPassword = errors.New("password does not meet strength requirements")
	// ErrPasswordChangeTooSoon is returned when the minimum interval since the
	// last password change has not elapsed.
	ErrPasswordChangeTooSoon = errors.New("password changed too recently")
	// ErrPasswordExpired is returned when the account password is past its
	// expiration date and must be changed before proceeding.
	ErrPasswordExpired = errors.New("password expired")
	// ErrPasswordReuse is returned when a candidate password matches one of the
	// recent password-history entries.
	ErrPasswordReuse = errors.New("cannot reuse old password")
	// ErrSessionInvalid is returned when a presented session token does not
	// match the account's current session token.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrTwoFactorRequired signals that a second-factor code was issued and the
	// login cannot complete until [Engine.ConfirmTwoFactor] succeeds.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrTwoFactorCodeInvalid covers both an expired and a mismatched
	// second-factor code. The cases are collapsed to avoid oracle behavior.
	ErrTwoFactorCodeInvalid = errors.New("invalid or expired verification code")
	// ErrTwoFactorAttemptsExceeded is returned when a pending challenge burned
	// through its attempt budget and was invalidated.
	ErrTwoFactorAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrResetTokenNotFound is returned when a reset token id resolves to
	// nothing, including tokens already consumed.
	ErrResetTokenNotFound = errors.New("reset token not found")
	// ErrResetTokenExpired is returned when a reset token exists but its
	// expiration has passed. The row is kept; only consumption deletes it.
	ErrResetTokenExpired = errors.New("reset token expired")
	// ErrResetTokenInvalid is returned when the presented token value does not
	// match the stored secret for the token id.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetAttemptsExceeded is returned when a reset token burned through
	// its attempt budget and was invalidated.
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	// ErrConflict is returned when an optimistic account update collided with a
	// concurrent writer and the internal retry also failed.
	ErrConflict = errors.New("concurrent update conflict, please retry")
	// ErrBackendUnavailable is returned when a store or the mailer could not be
	// reached. The security action was not performed.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
