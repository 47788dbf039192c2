package stores

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
	actionRecordVersionV1 = 1
)

// Purpose codes stored in the record. A token created for one purpose can
// never redeem another.
const (
	PurposeVerifyEmail   uint8 = 1
	PurposeResetPassword uint8 = 2
)

var (
	// ErrActionNotFound is returned when no record exists for the ID, or when
	// the purpose does not match. Purpose mismatch is deliberately
	// indistinguishable from absence and leaves the record untouched.
	ErrActionNotFound = errors.New("action record not found")
	// ErrActionExpired is returned when the record exists but is past its TTL.
	ErrActionExpired = errors.New("action record expired")
	// ErrActionUsed is returned when the record was already consumed. Under
	// concurrent redemption exactly one caller succeeds; the rest see this.
	ErrActionUsed = errors.New("action record already used")
	// ErrActionSecretMismatch is returned when the bearer secret does not hash
	// to the stored value.
	ErrActionSecretMismatch = errors.New("action secret mismatch")
	// ErrActionAttemptsExceeded is returned once too many bad secrets were
	// presented; the record is deleted.
	ErrActionAttemptsExceeded = errors.New("action attempts exceeded")
	// ErrActionRedisUnavailable is returned when the durable layer cannot be
	// reached.
	ErrActionRedisUnavailable = errors.New("action redis unavailable")
)

// ActionRecord is the server-side state of one single-use token. Used
// transitions false to true exactly once; the flipped record is kept until
// its natural TTL so a replay is answered with "already used" rather than
// "not found".
type ActionRecord struct {
	OwnerID    string
	SecretHash [32]byte
	Purpose    uint8
	ExpiresAt  int64
	Used       bool
	Attempts   uint16
}

// ActionStore persists single-use action records in Redis. Consume runs a
// WATCH/MULTI optimistic transaction per key, retried on contention, so the
// used-flag check-and-set is atomic at key granularity.
type ActionStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewActionStore creates an [ActionStore] backed by the given Redis client.
func NewActionStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *ActionStore {
	if now == nil {
		now = time.Now
	}
	return &ActionStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *ActionStore) key(actionID string) string {
	return s.prefix + "aat:" + actionID
}

// Save persists a fresh record under actionID with the given TTL.
func (s *ActionStore) Save(ctx context.Context, actionID string, record *ActionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive action ttl")
	}

	encoded, err := encodeActionRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(actionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrActionRedisUnavailable, err)
	}

	return nil
}

// Consume atomically redeems the record: verifies expiry, purpose, and the
// bearer secret, then flips Used in the same transaction. Two concurrent
// redemptions of the same token yield exactly one success; the loser gets
// [ErrActionUsed]. A wrong purpose reads as [ErrActionNotFound] and mutates
// nothing, so a later attempt with the right purpose still succeeds.
func (s *ActionStore) Consume(
	ctx context.Context,
	actionID string,
	providedHash [32]byte,
	purpose uint8,
	maxAttempts int,
) (*ActionRecord, error) {
	const maxRetries = 4
	key := s.key(actionID)

	for i := 0; i < maxRetries; i++ {
		var matched *ActionRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeActionRecord(data)
			if err != nil {
				return err
			}

			if s.now().Unix() >= record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrActionExpired
			}

			if record.Purpose != purpose {
				return ErrActionNotFound
			}

			if record.Used {
				return ErrActionUsed
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrActionAttemptsExceeded
				}

				ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
				updated, encErr := encodeActionRecord(record)
				if encErr != nil {
					return encErr
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrActionSecretMismatch
			}

			record.Used = true
			ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
			updated, encErr := encodeActionRecord(record)
			if encErr != nil {
				return encErr
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
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
				return nil, ErrActionNotFound
			case errors.Is(err, ErrActionNotFound),
				errors.Is(err, ErrActionExpired),
				errors.Is(err, ErrActionUsed),
				errors.Is(err, ErrActionSecretMismatch),
				errors.Is(err, ErrActionAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrActionRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrActionNotFound
}

// Get fetches a record without consuming it. Intended for introspection and
// tests; the redemption path goes through Consume only.
func (s *ActionStore) Get(ctx context.Context, actionID string) (*ActionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(actionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrActionRedisUnavailable, err)
	}

	record, err := decodeActionRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() >= record.ExpiresAt {
		return nil, ErrActionExpired
	}

	return record, nil
}

func encodeActionRecord(record *ActionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(actionRecordVersionV1)
	buf.WriteByte(record.Purpose)
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.OwnerID) > 65535 {
		return nil, errors.New("action record owner id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.OwnerID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.OwnerID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeActionRecord(data []byte) (*ActionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != actionRecordVersionV1 {
		return nil, errors.New("invalid action record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ActionRecord{
		Purpose: purpose,
		Used:    used != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var ownerLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ownerLen); err != nil {
		return nil, err
	}

	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return nil, err
	}
	record.OwnerID = string(owner)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
