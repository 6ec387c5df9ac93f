package credlock

import (
	"errors"
	"strings"
	"time"
)

// Config groups every tunable of the engine. A zero Config is not usable;
// start from [DefaultConfig] and override fields before [Builder.Build].
//
// Config instances are treated as immutable after Build.
type Config struct {
	Password      PasswordConfig
	Session       SessionConfig
	TwoFactor     TwoFactorConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the strength and rotation policy plus the argon2id
// hashing parameters.
type PasswordConfig struct {
	// MinLength is the minimum password length accepted by the strength rule.
	MinLength int
	// SpecialChars is the exact set of special characters a password must draw
	// from. Characters outside [A-Za-z0-9] and this set are rejected outright.
	SpecialChars string
	// MinChangeInterval is the minimum wall-clock time between password
	// changes. Zero disables the gate.
	MinChangeInterval time.Duration
	// MaxAge is how long a committed password stays valid.
	MaxAge time.Duration
	// HistoryDepth is how many of the newest history entries the reuse check
	// consults.
	HistoryDepth int

	// Argon2id parameters, memory in KB.
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin rehashes a verified password transparently when the
	// stored hash was produced with weaker parameters.
	UpgradeOnLogin bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session binding and the optional signed envelope.
type SessionConfig struct {
	// SignedEnvelope enables wrapping the opaque session token in a signed
	// compact token for cookie transport. Requires signing keys.
	SignedEnvelope bool
	// SigningMethod selects "ed25519" (default) or "hs256".
	SigningMethod string
	// PrivateKey / PublicKey hold the ed25519 key pair, or the shared secret
	// in PrivateKey for hs256.
	PrivateKey []byte
	PublicKey  []byte
	// EnvelopeTTL bounds the signed envelope lifetime. The opaque token itself
	// has no independent expiry; it dies when a later login rebinds it.
	EnvelopeTTL time.Duration
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the one-time-code challenge run before a session
// is bound for accounts that enabled a second factor.
type TwoFactorConfig struct {
	CodeDigits   int
	ChallengeTTL time.Duration
	MaxAttempts  int
	// MailSubject is used for the outbound code message.
	MailSubject string
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset token issuance and consumption.
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	MaxAttempts int
	// Retention is how long an expired token row is kept around so repeated
	// resolve calls keep answering "expired" instead of "not found". Only
	// successful consumption deletes a live token.
	Retention time.Duration
	// MailSubject is used for the outbound reset message.
	MailSubject string
	// LinkTemplate, when non-empty, is formatted with the token id and
	// becomes part of the message body. The raw secret is always appended as
	// the challenge the user presents back.
	LinkTemplate string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of blocking the
	// primary action. Dropped events are counted, never surfaced as errors.
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the engine was tuned for: a
// 12-character four-class password policy, 90-day rotation, last-2 reuse
// window, 5-minute two-factor codes, and 1-hour reset tokens.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			MinLength:         12,
			SpecialChars:      "@$!%*?&",
			MinChangeInterval: 0,
			MaxAge:            90 * 24 * time.Hour,
			HistoryDepth:      2,
			Memory:            65536,
			Time:              3,
			Parallelism:       2,
			SaltLength:        16,
			KeyLength:         32,
			UpgradeOnLogin:    true,
		},
		Session: SessionConfig{
			SignedEnvelope: false,
			SigningMethod:  "ed25519",
			EnvelopeTTL:    12 * time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			CodeDigits:   6,
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
			MailSubject:  "Your 2FA Code",
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    1 * time.Hour,
			MaxAttempts: 5,
			Retention:   24 * time.Hour,
			MailSubject: "Reset Password",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Password.MinLength < 8 {
		return errors.New("password min length below 8")
	}
	if cfg.Password.SpecialChars == "" {
		return errors.New("password special character set empty")
	}
	if cfg.Password.HistoryDepth < 1 {
		return errors.New("password history depth below 1")
	}
	if cfg.Password.MaxAge <= 0 {
		return errors.New("password max age not positive")
	}
	if cfg.Password.MinChangeInterval < 0 {
		return errors.New("password min change interval negative")
	}
	if cfg.TwoFactor.CodeDigits < 6 || cfg.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits out of range")
	}
	if cfg.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("two-factor challenge ttl not positive")
	}
	if cfg.TwoFactor.MaxAttempts < 1 {
		return errors.New("two-factor max attempts below 1")
	}
	if cfg.PasswordReset.TokenTTL <= 0 {
		return errors.New("reset token ttl not positive")
	}
	if cfg.PasswordReset.MaxAttempts < 1 {
		return errors.New("reset max attempts below 1")
	}
	if cfg.PasswordReset.Retention < 0 {
		return errors.New("reset retention negative")
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 1 {
		return errors.New("audit buffer size below 1")
	}
	if cfg.Session.SignedEnvelope {
		switch strings.ToLower(cfg.Session.SigningMethod) {
		case "ed25519":
			if len(cfg.Session.PrivateKey) == 0 || len(cfg.Session.PublicKey) == 0 {
				return errors.New("session signing requires an ed25519 key pair")
			}
		case "hs256":
			if len(cfg.Session.PrivateKey) < 32 {
				return errors.New("session signing requires a 32-byte hs256 secret")
			}
		default:
			return errors.New("unsupported session signing method")
		}
		if cfg.Session.EnvelopeTTL <= 0 {
			return errors.New("session envelope ttl not positive")
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = append([]byte(nil), cfg.Session.PrivateKey...)
	out.Session.PublicKey = append([]byte(nil), cfg.Session.PublicKey...)
	return out
}
