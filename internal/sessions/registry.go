package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no record exists for the jti.
	ErrNotFound = errors.New("refresh session not found")
	// ErrExpired is returned when the record exists but is past its expiry.
	ErrExpired = errors.New("refresh session expired")
	// ErrRevoked is returned when the record has already been revoked. Under
	// concurrent rotation this is what the losing caller observes.
	ErrRevoked = errors.New("refresh session revoked")
	// ErrRedisUnavailable is returned when the durable layer cannot be reached.
	ErrRedisUnavailable = errors.New("session redis unavailable")
	// ErrCorrupt is returned when a stored record fails to decode.
	ErrCorrupt = errors.New("refresh session corrupt")
)

const (
	recordPrefix = "ars:"
	ownerPrefix  = "aro:"

	takeStatusNotFound int64 = 0
	takeStatusExpired  int64 = 1
	takeStatusRevoked  int64 = 2
	takeStatusTaken    int64 = 3
	takeStatusCorrupt  int64 = 4
)

// takeRecordScript atomically transitions a record's revoked flag from
// false to true and returns the prior blob. It is shared by Rotate and
// Revoke: exactly one caller can win the transition for a given jti. The
// revoked byte sits at a fixed offset, so the script flips it with SETRANGE
// (which preserves the key TTL) instead of rewriting the blob.
const takeRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 20 or string.byte(data, 1) ~= 1 then
  return {4}
end
if string.byte(data, 2) ~= 0 then
  return {2}
end

local expires = 0
for i = 11, 18 do
  expires = expires * 256 + string.byte(data, i)
end
if expires <= tonumber(ARGV[1]) then
  return {1}
end

redis.call("SETRANGE", KEYS[1], 1, string.char(1))
return {3, data}
`

var takeRecordLua = redis.NewScript(takeRecordScript)

// Registry is the durable record of every issued refresh token. One key per
// jti plus a per-owner index set used by RevokeAll. All per-jti mutations run
// through the Lua take script and are linearizable at key granularity;
// unrelated jtis never contend.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRegistry creates a session [Registry] backed by the given Redis client.
func NewRegistry(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (r *Registry) recordKey(tokenID string) string {
	return r.prefix + recordPrefix + tokenID
}

func (r *Registry) ownerKey(ownerID string) string {
	return r.prefix + ownerPrefix + ownerID
}

// Persist writes the record and indexes it under its owner. The key TTL is
// the record's own expiry: expired records need no sweeper, Redis prunes
// them once the token would have been rejected on expiry anyway.
func (r *Registry) Persist(ctx context.Context, rec *Record) error {
	if rec.TokenID == "" {
		return errors.New("session record missing token id")
	}

	ttl := time.Unix(rec.ExpiresAt, 0).Sub(r.now())
	if ttl <= 0 {
		return errors.New("session record already expired")
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(rec.TokenID), data, ttl)
		pipe.SAdd(ctx, r.ownerKey(rec.OwnerID), rec.TokenID)
		pipe.Expire(ctx, r.ownerKey(rec.OwnerID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a record without mutating it. Revoked records are returned
// as-is; callers decide how a revoked record maps to their error surface.
func (r *Registry) Get(ctx context.Context, tokenID string) (*Record, error) {
	data, err := r.redis.Get(ctx, r.recordKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.TokenID = tokenID

	if rec.ExpiresAt <= r.now().Unix() {
		return nil, ErrExpired
	}

	return rec, nil
}

// Rotate atomically marks the record revoked and returns its prior state.
// When two rotations race on the same jti, the script serializes them:
// exactly one sees the unrevoked record, the other gets [ErrRevoked]. The
// caller issues the replacement pair only after this call succeeds.
func (r *Registry) Rotate(ctx context.Context, tokenID string) (*Record, error) {
	return r.take(ctx, tokenID)
}

// Revoke marks the record revoked (logout). Revoking an already revoked
// record returns [ErrRevoked]; the record itself is unchanged.
func (r *Registry) Revoke(ctx context.Context, tokenID string) (*Record, error) {
	return r.take(ctx, tokenID)
}

// RevokeAll revokes every live record indexed under ownerID and returns the
// ones this call transitioned. Cross-key: not atomic as a whole, and does not
// need to be; a session created concurrently is caught by the next call or
// dies by TTL. Per-jti transitions remain exactly-once.
func (r *Registry) RevokeAll(ctx context.Context, ownerID string) ([]*Record, error) {
	ownerKey := r.ownerKey(ownerID)

	tokenIDs, err := r.redis.SMembers(ctx, ownerKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := make([]*Record, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		rec, takeErr := r.take(ctx, tokenID)
		if takeErr != nil {
			switch {
			case errors.Is(takeErr, ErrNotFound), errors.Is(takeErr, ErrExpired), errors.Is(takeErr, ErrRevoked):
				continue
			default:
				return revoked, takeErr
			}
		}
		revoked = append(revoked, rec)
	}

	return revoked, nil
}

// OwnerSessionCount returns how many jtis are indexed for an owner, live or
// not. Intended for introspection, not policy.
func (r *Registry) OwnerSessionCount(ctx context.Context, ownerID string) (int, error) {
	count, err := r.redis.SCard(ctx, r.ownerKey(ownerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (r *Registry) take(ctx context.Context, tokenID string) (*Record, error) {
	result, err := takeRecordLua.Run(
		ctx,
		r.redis,
		[]string{r.recordKey(tokenID)},
		r.now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid take script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid take script status", ErrRedisUnavailable)
	}

	switch code {
	case takeStatusNotFound:
		return nil, ErrNotFound
	case takeStatusExpired:
		return nil, ErrExpired
	case takeStatusRevoked:
		return nil, ErrRevoked
	case takeStatusCorrupt:
		return nil, ErrCorrupt
	case takeStatusTaken:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing take script payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid take script payload", ErrRedisUnavailable)
		}

		rec, decErr := decodeRecord(blob)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, decErr)
		}
		rec.TokenID = tokenID
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown take script status", ErrRedisUnavailable)
	}
}
