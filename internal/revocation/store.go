package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the durable layer cannot be reached.
// Callers must treat it as fail-closed: an unreachable store never means
// "not revoked".
var ErrRedisUnavailable = errors.New("revocation redis unavailable")

const (
	entryPrefix     = "arv:"
	watermarkPrefix = "arw:"
)

// Store is the durable revocation set, keyed by token ID (jti), with an
// in-process cache in front of Redis. Writes go through to Redis first and
// populate the cache only on success; reads consult the cache and fall
// through to Redis on miss. Entries carry the token's own expiry, so Redis
// prunes them once the token would have died naturally anyway.
//
// The cache holds positive membership only. A revocation written by another
// process is still found through the Redis fallthrough; the cache just spares
// hot jtis a round-trip.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time

	entries    sync.Map // tokenID -> int64 unix expiry
	watermarks sync.Map // ownerID -> ownerWatermark
}

type ownerWatermark struct {
	revokedAt int64 // unix seconds
	expiresAt int64
}

// New creates a revocation [Store] backed by the given Redis client.
// prefix namespaces the Redis keys; now supplies the clock.
func New(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) entryKey(tokenID string) string {
	return s.prefix + entryPrefix + tokenID
}

func (s *Store) watermarkKey(ownerID string) string {
	return s.prefix + watermarkPrefix + ownerID
}

// Add marks tokenID revoked until expiresAt. Adding the same jti twice is
// observably identical to adding it once. A durable-write failure is
// surfaced, never swallowed: better to over-revoke than under-revoke.
func (s *Store) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// The token is already past its own expiry; expiry-based rejection
		// covers it without an entry.
		return nil
	}

	value := strconv.FormatInt(expiresAt.Unix(), 10)
	if err := s.redis.Set(ctx, s.entryKey(tokenID), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	s.entries.Store(tokenID, expiresAt.Unix())
	return nil
}

// Contains reports whether tokenID is revoked. Reads never block on writes
// for unrelated keys; the cache is lock-free and Redis serves misses.
func (s *Store) Contains(ctx context.Context, tokenID string) (bool, error) {
	nowUnix := s.now().Unix()

	if v, ok := s.entries.Load(tokenID); ok {
		if exp, _ := v.(int64); exp > nowUnix {
			return true, nil
		}
		s.entries.Delete(tokenID)
	}

	value, err := s.redis.Get(ctx, s.entryKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	exp, parseErr := strconv.ParseInt(value, 10, 64)
	if parseErr != nil || exp <= nowUnix {
		return false, nil
	}

	s.entries.Store(tokenID, exp)
	return true, nil
}

// RevokeOwner records a per-owner watermark: every token issued at or before
// revokedAt is treated as revoked. retain bounds how long the watermark must
// outlive the longest token it can affect.
func (s *Store) RevokeOwner(ctx context.Context, ownerID string, revokedAt time.Time, retain time.Duration) error {
	if retain <= 0 {
		return errors.New("non-positive watermark retention")
	}

	value := strconv.FormatInt(revokedAt.Unix(), 10)
	if err := s.redis.Set(ctx, s.watermarkKey(ownerID), value, retain).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	s.watermarks.Store(ownerID, ownerWatermark{
		revokedAt: revokedAt.Unix(),
		expiresAt: s.now().Add(retain).Unix(),
	})
	return nil
}

// OwnerRevokedAt returns the owner's revocation watermark, if one is active.
func (s *Store) OwnerRevokedAt(ctx context.Context, ownerID string) (time.Time, bool, error) {
	nowUnix := s.now().Unix()

	if v, ok := s.watermarks.Load(ownerID); ok {
		if wm, _ := v.(ownerWatermark); wm.expiresAt > nowUnix {
			return time.Unix(wm.revokedAt, 0), true, nil
		}
		s.watermarks.Delete(ownerID)
	}

	value, err := s.redis.Get(ctx, s.watermarkKey(ownerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revokedAt, parseErr := strconv.ParseInt(value, 10, 64)
	if parseErr != nil {
		return time.Time{}, false, nil
	}

	return time.Unix(revokedAt, 0), true, nil
}

// Prune drops cache entries whose backing tokens have expired and returns the
// number removed. Redis prunes its own side through key TTLs; this only keeps
// the in-process cache from accumulating dead jtis.
func (s *Store) Prune(now time.Time) int {
	nowUnix := now.Unix()
	removed := 0

	s.entries.Range(func(key, value any) bool {
		if exp, _ := value.(int64); exp <= nowUnix {
			s.entries.Delete(key)
			removed++
		}
		return true
	})

	s.watermarks.Range(func(key, value any) bool {
		if wm, _ := value.(ownerWatermark); wm.expiresAt <= nowUnix {
			s.watermarks.Delete(key)
			removed++
		}
		return true
	})

	return removed
}
