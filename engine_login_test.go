package credlock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccessBindsSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	result, err := env.engine.Login(context.Background(), "alice@example.com", "Sup3rSecret@One")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("did not expect a two-factor step")
	}
	if result.SessionToken == "" {
		t.Fatal("expected a session token")
	}

	stored := env.directory.account(t, "u1")
	if stored.CurrentSessionToken != result.SessionToken {
		t.Fatalf("stored token %q does not match returned token %q", stored.CurrentSessionToken, result.SessionToken)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.engine.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	_, err := env.engine.Login(context.Background(), "alice@example.com", "Wr0ngSecret@One")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	stored := env.directory.account(t, "u1")
	if stored.CurrentSessionToken != "" {
		t.Fatal("failed login must not bind a session")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 1 {
		t.Fatalf("expected 1 login failure, got %d", got)
	}
}

func TestLoginExpiredPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	env.clock.Advance(env.engine.config.Password.MaxAge + time.Second)

	_, err := env.engine.Login(context.Background(), "alice@example.com", "Sup3rSecret@One")
	if !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestLoginAtExpiryBoundaryStillAccepted(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	// Exactly at the expiry instant the password is still valid; only a
	// strictly later login is rejected.
	env.clock.Advance(env.engine.config.Password.MaxAge)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "Sup3rSecret@One"); err != nil {
		t.Fatalf("login at expiry boundary failed: %v", err)
	}
}

func TestLoginRebindInvalidatesPreviousSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)
	ctx := context.Background()

	first, err := env.engine.Login(ctx, "alice@example.com", "Sup3rSecret@One")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := env.engine.Login(ctx, "alice@example.com", "Sup3rSecret@One")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if first.SessionToken == second.SessionToken {
		t.Fatal("expected a fresh token on rebind")
	}

	if err := env.engine.ValidateSession(ctx, "u1", second.SessionToken); err != nil {
		t.Fatalf("newest session should validate: %v", err)
	}
	if err := env.engine.ValidateSession(ctx, "u1", first.SessionToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for superseded token, got %v", err)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t, testConfig())
	account := env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	// Downgrade the stored hash to weaker parameters than the engine's.
	weak := testConfig().Password
	weak.Time = 1
	weak.Memory = 4096
	weakHasher := newTestHasherWith(t, weak)
	weakHash, err := weakHasher.Hash("Sup3rSecret@One")
	if err != nil {
		t.Fatalf("weak Hash failed: %v", err)
	}
	env.directory.mu.Lock()
	account.PasswordHash = weakHash
	env.directory.accounts["u1"] = account
	env.directory.mu.Unlock()

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "Sup3rSecret@One"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stored := env.directory.account(t, "u1")
	if stored.PasswordHash == weakHash {
		t.Fatal("expected the stored hash to be upgraded on login")
	}
	// Rotation schedule is untouched by a transparent rehash.
	if !stored.PasswordExpiresAt.Equal(account.PasswordExpiresAt) {
		t.Fatal("rehash must not move the expiry timestamp")
	}
}
