package credlock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/credlock/credlock/password"
	"github.com/redis/go-redis/v9"
)

func newTestHasherWith(t *testing.T, cfg PasswordConfig) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

type mockDirectory struct {
	mu       sync.Mutex
	accounts map[string]Account
	history  map[string][]PasswordHistoryEntry

	updateSessionErr  error
	updatePasswordErr error

	sessionUpdateCalls  int
	passwordUpdateCalls int
}

func newMockDirectory(accounts ...Account) *mockDirectory {
	d := &mockDirectory{
		accounts: make(map[string]Account),
		history:  make(map[string][]PasswordHistoryEntry),
	}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *mockDirectory) GetAccountByID(_ context.Context, id string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (d *mockDirectory) GetAccountByEmail(_ context.Context, email string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, account := range d.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (d *mockDirectory) UpdateSessionToken(_ context.Context, accountID, token string, expectVersion uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessionUpdateCalls++
	if d.updateSessionErr != nil {
		return d.updateSessionErr
	}

	account, ok := d.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.Version != expectVersion {
		return ErrConflict
	}

	account.CurrentSessionToken = token
	account.Version++
	d.accounts[accountID] = account
	return nil
}

func (d *mockDirectory) UpdatePasswordHash(_ context.Context, accountID, hash string, changedAt, expiresAt time.Time, expectVersion uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.passwordUpdateCalls++
	if d.updatePasswordErr != nil {
		return d.updatePasswordErr
	}

	account, ok := d.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.Version != expectVersion {
		return ErrConflict
	}

	account.PasswordHash = hash
	account.LastPasswordChangeAt = changedAt
	account.PasswordExpiresAt = expiresAt
	account.Version++
	d.accounts[accountID] = account
	return nil
}

func (d *mockDirectory) SetTwoFactorEnabled(_ context.Context, accountID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.TwoFactorEnabled = enabled
	d.accounts[accountID] = account
	return nil
}

func (d *mockDirectory) RecentPasswordHistory(_ context.Context, accountID string, n int) ([]PasswordHistoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := append([]PasswordHistoryEntry(nil), d.history[accountID]...)
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (d *mockDirectory) AppendPasswordHistory(_ context.Context, entry PasswordHistoryEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history[entry.AccountID] = append(d.history[entry.AccountID], entry)
	return nil
}

func (d *mockDirectory) account(t *testing.T, id string) Account {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[id]
	if !ok {
		t.Fatalf("account %q not in directory", id)
	}
	return account
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type mockMailer struct {
	mu    sync.Mutex
	sends []sentMail
	err   error
}

func (m *mockMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *mockMailer) last(t *testing.T) sentMail {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sends) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.sends[len(m.sends)-1]
}

// lastBodyValue extracts the value after a "<prefix>" marker in the most
// recent mail body, up to the next whitespace.
func (m *mockMailer) lastBodyValue(t *testing.T, prefix string) string {
	t.Helper()

	body := m.last(t).Body
	idx := strings.Index(body, prefix)
	if idx < 0 {
		t.Fatalf("mail body missing %q:\n%s", prefix, body)
	}
	rest := body[idx+len(prefix):]
	if end := strings.IndexAny(rest, " \t\n"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{t: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine    *Engine
	directory *mockDirectory
	mailer    *mockMailer
	sink      *MemorySink
	clock     *testClock
}

func newTestEnv(t *testing.T, cfg Config, accounts ...Account) *testEnv {
	t.Helper()

	directory := newMockDirectory(accounts...)
	mailer := &mockMailer{}
	sink := NewMemorySink()

	engine, err := New().
		WithConfig(cfg).
		WithDirectory(directory).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	engine.now = clock.Now
	if s, ok := engine.twoFactor.(*memoryTwoFactorStore); ok {
		s.now = clock.Now
	}
	if s, ok := engine.resets.(*memoryResetTokenStore); ok {
		s.now = clock.Now
	}

	return &testEnv{
		engine:    engine,
		directory: directory,
		mailer:    mailer,
		sink:      sink,
		clock:     clock,
	}
}

// seedAccount hashes the password with the engine's hasher and installs a
// consistent account plus its newest history row.
func (env *testEnv) seedAccount(t *testing.T, id, email, userName, plaintext string, twoFactor bool) Account {
	t.Helper()

	hash, err := env.engine.hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	now := env.clock.Now()
	account := Account{
		ID:                   id,
		Email:                email,
		UserName:             userName,
		PasswordHash:         hash,
		LastPasswordChangeAt: now,
		PasswordExpiresAt:    now.Add(env.engine.config.Password.MaxAge),
		TwoFactorEnabled:     twoFactor,
		Version:              1,
	}

	env.directory.mu.Lock()
	env.directory.accounts[id] = account
	env.directory.history[id] = append(env.directory.history[id], PasswordHistoryEntry{
		ID:           id + "-h1",
		AccountID:    id,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	env.directory.mu.Unlock()

	return account
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}
