// Command credlock-loadtest measures Login and ValidateSession throughput
// against an in-process engine. The account directory is an in-memory shard
// map, and the ephemeral stores are backed by miniredis unless -redis-addr
// (or REDIS_ADDR) points at a real instance, so the numbers isolate the
// engine's own hot path plus the configured argon2 cost.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	credlock "github.com/credlock/credlock"
	"github.com/credlock/credlock/password"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const seedPassword = "Load-Test-Pw9$"

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (login + validate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Int("argon-memory", 8192, "argon2 memory cost in KiB (production default is much higher)")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := credlock.DefaultConfig()
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "argon2 init: %v\n", err)
		os.Exit(1)
	}

	// One hash shared by every seeded account. Hashing per account would
	// dominate seeding time without changing what the phases measure.
	seedHash, err := hasher.Hash(seedPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "argon2 hash: %v\n", err)
		os.Exit(1)
	}

	directory := newShardedDirectory()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	emails := make([]string, *accounts)
	now := time.Now().UTC()
	for i := 0; i < *accounts; i++ {
		id := fmt.Sprintf("acct-%d", i)
		emails[i] = fmt.Sprintf("user%d@load.test", i)
		directory.put(credlock.Account{
			ID:                   id,
			Email:                emails[i],
			UserName:             fmt.Sprintf("user%d", i),
			PasswordHash:         seedHash,
			LastPasswordChangeAt: now,
			PasswordExpiresAt:    now.Add(cfg.Password.MaxAge),
			Version:              1,
		})
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	engine, err := credlock.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(directory).
		WithMailer(dropMailer{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	loginStats, tokens := runLoginPhase(ctx, engine, emails, *ops, *concurrency)
	validateStats := runValidatePhase(ctx, engine, tokens, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
}

type boundToken struct {
	accountID string
	token     string
	mu        sync.Mutex
}

// runLoginPhase hammers Login across random accounts. Each account keeps
// only its latest token; the previous one is superseded by design, so the
// validate phase reads the tokens recorded here.
func runLoginPhase(ctx context.Context, engine *credlock.Engine, emails []string, ops, concurrency int) (phaseStats, []boundToken) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)
	tokens := make([]boundToken, len(emails))

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(emails))
				t0 := time.Now()
				result, err := engine.Login(ctx, emails[idx], seedPassword)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state := &tokens[idx]
					state.mu.Lock()
					state.accountID = result.AccountID
					state.token = result.SessionToken
					state.mu.Unlock()
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), tokens
}

// runValidatePhase checks recorded tokens. A token superseded by a later
// login in the same slot before its write landed counts as a failure, which
// keeps the failure column honest about rebind races rather than hiding them.
func runValidatePhase(ctx context.Context, engine *credlock.Engine, tokens []boundToken, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &tokens[r.Intn(len(tokens))]
				state.mu.Lock()
				accountID, token := state.accountID, state.token
				state.mu.Unlock()
				if token == "" {
					continue
				}

				t0 := time.Now()
				err := engine.ValidateSession(ctx, accountID, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type dropMailer struct{}

func (dropMailer) Send(context.Context, string, string, string) error { return nil }

// shardedDirectory is a lock-striped in-memory UserDirectory. Striping keeps
// the directory itself out of the way so the measured contention is the
// engine's, not the harness's.
type shardedDirectory struct {
	shards [64]directoryShard
	emails sync.Map // email -> account id
}

type directoryShard struct {
	mu       sync.RWMutex
	accounts map[string]credlock.Account
	history  map[string][]credlock.PasswordHistoryEntry
}

func newShardedDirectory() *shardedDirectory {
	d := &shardedDirectory{}
	for i := range d.shards {
		d.shards[i].accounts = make(map[string]credlock.Account)
		d.shards[i].history = make(map[string][]credlock.PasswordHistoryEntry)
	}
	return d
}

func (d *shardedDirectory) shard(accountID string) *directoryShard {
	var h uint32 = 2166136261
	for i := 0; i < len(accountID); i++ {
		h ^= uint32(accountID[i])
		h *= 16777619
	}
	return &d.shards[h%uint32(len(d.shards))]
}

func (d *shardedDirectory) put(a credlock.Account) {
	s := d.shard(a.ID)
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
	d.emails.Store(a.Email, a.ID)
}

func (d *shardedDirectory) GetAccountByID(_ context.Context, id string) (credlock.Account, error) {
	s := d.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return credlock.Account{}, credlock.ErrAccountNotFound
	}
	return account, nil
}

func (d *shardedDirectory) GetAccountByEmail(ctx context.Context, email string) (credlock.Account, error) {
	id, ok := d.emails.Load(email)
	if !ok {
		return credlock.Account{}, credlock.ErrAccountNotFound
	}
	return d.GetAccountByID(ctx, id.(string))
}

func (d *shardedDirectory) UpdateSessionToken(_ context.Context, accountID, token string, expectVersion uint32) error {
	s := d.shard(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credlock.ErrAccountNotFound
	}
	if account.Version != expectVersion {
		return credlock.ErrConflict
	}
	account.CurrentSessionToken = token
	account.Version++
	s.accounts[accountID] = account
	return nil
}

func (d *shardedDirectory) UpdatePasswordHash(_ context.Context, accountID, hash string, changedAt, expiresAt time.Time, expectVersion uint32) error {
	s := d.shard(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credlock.ErrAccountNotFound
	}
	if account.Version != expectVersion {
		return credlock.ErrConflict
	}
	account.PasswordHash = hash
	account.LastPasswordChangeAt = changedAt
	account.PasswordExpiresAt = expiresAt
	account.Version++
	s.accounts[accountID] = account
	return nil
}

func (d *shardedDirectory) SetTwoFactorEnabled(_ context.Context, accountID string, enabled bool) error {
	s := d.shard(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credlock.ErrAccountNotFound
	}
	account.TwoFactorEnabled = enabled
	s.accounts[accountID] = account
	return nil
}

func (d *shardedDirectory) RecentPasswordHistory(_ context.Context, accountID string, n int) ([]credlock.PasswordHistoryEntry, error) {
	s := d.shard(accountID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := append([]credlock.PasswordHistoryEntry(nil), s.history[accountID]...)
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

func (d *shardedDirectory) AppendPasswordHistory(_ context.Context, entry credlock.PasswordHistoryEntry) error {
	s := d.shard(entry.AccountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[entry.AccountID] = append(s.history[entry.AccountID], entry)
	return nil
}
