package credlock

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// The in-memory stores back Redis-less deployments and tests. Expiration is
// enforced at check-time only; there is no background sweeper, matching the
// Redis stores' observable behavior.

type memoryTwoFactorStore struct {
	mu      sync.Mutex
	records map[string]*twoFactorChallenge
	now     func() time.Time
}

func newMemoryTwoFactorStore() *memoryTwoFactorStore {
	return &memoryTwoFactorStore{
		records: make(map[string]*twoFactorChallenge),
		now:     time.Now,
	}
}

func (s *memoryTwoFactorStore) Save(_ context.Context, email string, record *twoFactorChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[email] = &clone
	return nil
}

func (s *memoryTwoFactorStore) Consume(_ context.Context, email string, providedHash [32]byte, maxAttempts int) (*twoFactorChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[email]
	if !ok {
		return nil, errTwoFactorNotFound
	}

	if s.now().Unix() > record.ExpiresAt {
		delete(s.records, email)
		return nil, errTwoFactorExpired
	}

	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		record.Attempts++
		if int(record.Attempts) >= maxAttempts {
			delete(s.records, email)
			return nil, errTwoFactorExceeded
		}
		return nil, errTwoFactorMismatch
	}

	delete(s.records, email)
	clone := *record
	return &clone, nil
}

func (s *memoryTwoFactorStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, email)
	return nil
}

type memoryResetTokenStore struct {
	mu      sync.Mutex
	records map[string]*memoryResetEntry
	now     func() time.Time
}

type memoryResetEntry struct {
	record    resetTokenRecord
	retainTil int64
}

func newMemoryResetTokenStore() *memoryResetTokenStore {
	return &memoryResetTokenStore{
		records: make(map[string]*memoryResetEntry),
		now:     time.Now,
	}
}

func (s *memoryResetTokenStore) Save(_ context.Context, tokenID string, record *resetTokenRecord, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[tokenID] = &memoryResetEntry{
		record:    *record,
		retainTil: record.ExpiresAt + int64(retention/time.Second),
	}
	return nil
}

func (s *memoryResetTokenStore) Get(_ context.Context, tokenID string) (*resetTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[tokenID]
	if !ok {
		return nil, errResetNotFound
	}

	now := s.now().Unix()
	if now > entry.retainTil {
		delete(s.records, tokenID)
		return nil, errResetNotFound
	}
	if now > entry.record.ExpiresAt {
		return nil, errResetExpired
	}

	clone := entry.record
	return &clone, nil
}

func (s *memoryResetTokenStore) Consume(_ context.Context, tokenID string, providedHash [32]byte, maxAttempts int) (*resetTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[tokenID]
	if !ok {
		return nil, errResetNotFound
	}

	now := s.now().Unix()
	if now > entry.retainTil {
		delete(s.records, tokenID)
		return nil, errResetNotFound
	}
	if now > entry.record.ExpiresAt {
		return nil, errResetExpired
	}

	if subtle.ConstantTimeCompare(entry.record.SecretHash[:], providedHash[:]) != 1 {
		entry.record.Attempts++
		if int(entry.record.Attempts) >= maxAttempts {
			delete(s.records, tokenID)
			return nil, errResetAttemptsExceeded
		}
		return nil, errResetSecretMismatch
	}

	delete(s.records, tokenID)
	clone := entry.record
	return &clone, nil
}
