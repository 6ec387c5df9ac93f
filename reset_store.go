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
	resetKeyPrefix      = "crt"
	resetRecordVersion1 = 1
)

var (
	errResetNotFound         = errors.New("reset token not found")
	errResetExpired          = errors.New("reset token expired")
	errResetSecretMismatch   = errors.New("reset secret mismatch")
	errResetAttemptsExceeded = errors.New("reset attempts exceeded")
	errResetBackend          = errors.New("reset backend unavailable")
)

// resetTokenRecord is the stored half of a reset challenge. The raw secret
// never touches the store; only its digest does.
type resetTokenRecord struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// resetTokenStore persists reset tokens keyed by their public id (the value
// that travels in the reset link).
//
// Get returns expired records as errResetExpired without deleting them, so
// repeated resolve calls stay idempotent; rows disappear either through
// Consume or once the retention window lapses. Consume deletes the record
// atomically on a successful secret match.
type resetTokenStore interface {
	Save(ctx context.Context, tokenID string, record *resetTokenRecord, retention time.Duration) error
	Get(ctx context.Context, tokenID string) (*resetTokenRecord, error)
	Consume(ctx context.Context, tokenID string, providedHash [32]byte, maxAttempts int) (*resetTokenRecord, error)
}

type redisResetTokenStore struct {
	redis  *redis.Client
	prefix string
}

func newRedisResetTokenStore(redisClient *redis.Client) *redisResetTokenStore {
	return &redisResetTokenStore{
		redis:  redisClient,
		prefix: resetKeyPrefix,
	}
}

func (s *redisResetTokenStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

func (s *redisResetTokenStore) Save(
	ctx context.Context,
	tokenID string,
	record *resetTokenRecord,
	retention time.Duration,
) error {
	encoded, err := encodeResetTokenRecord(record)
	if err != nil {
		return err
	}

	// Row TTL covers the logical expiry plus retention, so an expired row
	// still answers "expired" instead of "not found" for a while.
	ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + retention
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errResetBackend, err)
	}
	return nil
}

func (s *redisResetTokenStore) Get(ctx context.Context, tokenID string) (*resetTokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", errResetBackend, err)
	}

	record, err := decodeResetTokenRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, errResetExpired
	}
	return record, nil
}

func (s *redisResetTokenStore) Consume(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	maxAttempts int,
) (*resetTokenRecord, error) {
	const maxRetries = 4
	key := s.key(tokenID)

	for i := 0; i < maxRetries; i++ {
		var matched *resetTokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeResetTokenRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				return errResetExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errResetAttemptsExceeded
				}

				updated, err := encodeResetTokenRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, redis.KeepTTL)
					return nil
				})
				if err != nil {
					return err
				}
				return errResetSecretMismatch
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
				return nil, errResetNotFound
			case errors.Is(err, errResetExpired),
				errors.Is(err, errResetSecretMismatch),
				errors.Is(err, errResetAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errResetBackend, err)
			}
		}

		return matched, nil
	}

	return nil, errResetNotFound
}

func encodeResetTokenRecord(record *resetTokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("reset record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeResetTokenRecord(data []byte) (*resetTokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersion1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &resetTokenRecord{}
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

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
