package credlock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsStrongPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())

	cases := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"all four classes", "Sup3rSecret@One", true},
		{"exactly minimum length", "Aa1@aaaaaaaa", true},
		{"every allowed special", "Aa1@$!%*?&aaa", true},
		{"too short", "Aa1@aaaaaaa", false},
		{"missing uppercase", "aa1@aaaaaaaa", false},
		{"missing lowercase", "AA1@AAAAAAAA", false},
		{"missing digit", "Aaa@aaaaaaaa", false},
		{"missing special", "Aa1aaaaaaaaa", false},
		{"disallowed special", "Aa1#aaaaaaaa", false},
		{"space disqualifies", "Aa1@ aaaaaaaa", false},
		{"non-ascii disqualifies", "Aa1@aaaaaaaä", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := env.engine.IsStrongPassword(tc.candidate); got != tc.want {
				t.Fatalf("IsStrongPassword(%q) = %v, want %v", tc.candidate, got, tc.want)
			}
		})
	}
}

func TestChangePasswordSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	account := env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)
	ctx := context.Background()

	env.clock.Advance(time.Hour)

	if err := env.engine.ChangePassword(ctx, "u1", "Sup3rSecret@One", "N3wSecret@Pass"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	stored := env.directory.account(t, "u1")
	if stored.PasswordHash == account.PasswordHash {
		t.Fatal("expected the stored hash to change")
	}
	if !stored.LastPasswordChangeAt.Equal(env.clock.Now()) {
		t.Fatal("expected the change timestamp to advance")
	}
	want := env.clock.Now().Add(env.engine.config.Password.MaxAge)
	if !stored.PasswordExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, stored.PasswordExpiresAt)
	}

	history, err := env.directory.RecentPasswordHistory(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentPasswordHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].PasswordHash != stored.PasswordHash {
		t.Fatal("newest history row must carry the new hash")
	}

	// The new password logs in, the old one no longer does.
	if _, err := env.engine.Login(ctx, "alice@example.com", "N3wSecret@Pass"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Sup3rSecret@One"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials with old password, got %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	err := env.engine.ChangePassword(context.Background(), "u1", "Wr0ngSecret@One", "N3wSecret@Pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordWeakNew(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	err := env.engine.ChangePassword(context.Background(), "u1", "Sup3rSecret@One", "weak")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestChangePasswordReuseWithinHistoryWindow(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)
	ctx := context.Background()

	// Rotate once, then try to go back to the immediately previous password.
	if err := env.engine.ChangePassword(ctx, "u1", "Sup3rSecret@One", "N3wSecret@Pass"); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	err := env.engine.ChangePassword(ctx, "u1", "N3wSecret@Pass", "Sup3rSecret@One")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordChangeReuseRejected]; got != 1 {
		t.Fatalf("expected 1 reuse rejection, got %d", got)
	}
}

func TestChangePasswordOlderThanHistoryWindowAllowed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)
	ctx := context.Background()

	// Push the original password out of the last-2 window with two rotations,
	// spacing the history rows so ordering is unambiguous.
	env.clock.Advance(time.Minute)
	if err := env.engine.ChangePassword(ctx, "u1", "Sup3rSecret@One", "N3wSecret@Pass"); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}
	env.clock.Advance(time.Minute)
	if err := env.engine.ChangePassword(ctx, "u1", "N3wSecret@Pass", "An0therSecret@X"); err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}

	env.clock.Advance(time.Minute)
	if err := env.engine.ChangePassword(ctx, "u1", "An0therSecret@X", "Sup3rSecret@One"); err != nil {
		t.Fatalf("expected the original password to be allowed again, got %v", err)
	}
}

func TestChangePasswordRejectedAfterExpiry(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)

	env.clock.Advance(env.engine.config.Password.MaxAge + time.Second)

	err := env.engine.ChangePassword(context.Background(), "u1", "Sup3rSecret@One", "N3wSecret@Pass")
	if !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestChangePasswordMinIntervalGate(t *testing.T) {
	cfg := testConfig()
	cfg.Password.MinChangeInterval = 24 * time.Hour
	env := newTestEnv(t, cfg)
	env.seedAccount(t, "u1", "alice@example.com", "alice", "Sup3rSecret@One", false)
	ctx := context.Background()

	env.clock.Advance(time.Hour)
	err := env.engine.ChangePassword(ctx, "u1", "Sup3rSecret@One", "N3wSecret@Pass")
	if !errors.Is(err, ErrPasswordChangeTooSoon) {
		t.Fatalf("expected ErrPasswordChangeTooSoon, got %v", err)
	}

	env.clock.Advance(23 * time.Hour)
	if err := env.engine.ChangePassword(ctx, "u1", "Sup3rSecret@One", "N3wSecret@Pass"); err != nil {
		t.Fatalf("change after the interval failed: %v", err)
	}
}

func TestChangePasswordUnknownAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())

	err := env.engine.ChangePassword(context.Background(), "ghost", "x", "y")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
