package credlock

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	twoFactorKeyPrefix      = "c2f"
	twoFactorRecordVersion1 = 1
)

var (
	errTwoFactorNotFound = errors.New("two-factor challenge not found")
	errTwoFactorExpired  = errors.New("two-factor challenge expired")
	errTwoFactorMismatch = errors.New("two-factor code mismatch")
	errTwoFactorExceeded = errors.New("two-factor attempts exceeded")
	errTwoFactorBackend  = errors.New("two-factor backend unavailable")
)

// twoFactorChallenge is the ephemeral record behind a pending login. Only
// the code digest is stored, keyed by the email under verification.
type twoFactorChallenge struct {
	AccountID string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// twoFactorStore holds pending second-factor challenges. Consume must be
// atomic: a code that verified once can never verify again.
type twoFactorStore interface {
	Save(ctx context.Context, email string, record *twoFactorChallenge, ttl time.Duration) error
	// Consume validates the provided code digest against the stored
	// challenge. On match the challenge is deleted and returned. On mismatch
	// the attempt counter is advanced, the challenge deleted once the budget
	// is exhausted. Expired challenges are deleted and reported as such.
	Consume(ctx context.Context, email string, providedHash [32]byte, maxAttempts int) (*twoFactorChallenge, error)
	Delete(ctx context.Context, email string) error
}

type redisTwoFactorStore struct {
	redis  *redis.Client
	prefix string
}

func newRedisTwoFactorStore(redisClient *redis.Client) *redisTwoFactorStore {
	return &redisTwoFactorStore{
		redis:  redisClient,
		prefix: twoFactorKeyPrefix,
	}
}

func (s *redisTwoFactorStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *redisTwoFactorStore) Save(
	ctx context.Context,
	email string,
	record *twoFactorChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeTwoFactorChallenge(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errTwoFactorBackend, err)
	}
	return nil
}

func (s *redisTwoFactorStore) Consume(
	ctx context.Context,
	email string,
	providedHash [32]byte,
	maxAttempts int,
) (*twoFactorChallenge, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var matched *twoFactorChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTwoFactorChallenge(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errTwoFactorExpired
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errTwoFactorExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errTwoFactorExpired
				}

				updated, err := encodeTwoFactorChallenge(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errTwoFactorMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errTwoFactorNotFound
			case errors.Is(err, errTwoFactorExpired),
				errors.Is(err, errTwoFactorMismatch),
				errors.Is(err, errTwoFactorExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errTwoFactorBackend, err)
			}
		}

		return matched, nil
	}

	return nil, errTwoFactorNotFound
}

func (s *redisTwoFactorStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errTwoFactorBackend, err)
	}
	return nil
}

func encodeTwoFactorChallenge(record *twoFactorChallenge) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(twoFactorRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("two-factor challenge account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeTwoFactorChallenge(data []byte) (*twoFactorChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != twoFactorRecordVersion1 {
		return nil, errors.New("invalid two-factor challenge version")
	}

	record := &twoFactorChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	accountID := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
