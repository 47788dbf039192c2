package rate

import (
	"errors"
	"fmt"
	"time"

	"context"

	"github.com/redis/go-redis/v9"
)

const (
	requestPrefix = "arl:"
	quotaPrefix   = "aqt:"
)

// Result is one gate decision. Remaining and ResetAt travel back to callers
// so they can set backoff headers; they are populated whether or not the
// request was allowed.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Gate enforces both counter policies over one mechanism: short fixed-window
// request-rate counters and calendar-period usage quotas, all Redis INCR
// based. The read-then-increment is a single INCR, so two concurrent
// requests can never both pass a boundary check.
type Gate struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a [Gate] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (g *Gate) requestKey(identity string) string {
	return g.prefix + requestPrefix + identity
}

func (g *Gate) quotaKey(ownerID string, period string) string {
	return g.prefix + quotaPrefix + ownerID + ":" + period
}

// AllowRequest counts one request for identity against a fixed window.
// The counter key gets its TTL on the first hit in the window; overshoot
// increments only ever affect already-rejected requests, so at most limit
// requests pass per window.
func (g *Gate) AllowRequest(ctx context.Context, identity string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, errors.New("invalid rate configuration")
	}

	key := g.requestKey(identity)
	count, err := g.incrementWithTTL(ctx, key, window)
	if err != nil {
		return Result{}, err
	}

	resetAt, err := g.resetTime(ctx, key, window)
	if err != nil {
		return Result{}, err
	}

	return decision(count, limit, resetAt), nil
}

// ConsumeQuota counts one metered action for ownerID against the current
// calendar-month quota. Exceeding it is not retryable until the period rolls
// over, which is also when the counter key dies.
func (g *Gate) ConsumeQuota(ctx context.Context, ownerID string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, errors.New("invalid quota configuration")
	}

	now := g.now().UTC()
	periodEnd := periodEndOf(now)
	key := g.quotaKey(ownerID, periodOf(now))

	count, err := g.incrementWithTTL(ctx, key, periodEnd.Sub(now))
	if err != nil {
		return Result{}, err
	}

	return decision(count, limit, periodEnd), nil
}

// CheckQuota reports whether ownerID has allowance left in the current
// period without counting an action. Allowed means a subsequent
// [Gate.ConsumeQuota] would pass, barring concurrent consumers.
func (g *Gate) CheckQuota(ctx context.Context, ownerID string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, errors.New("invalid quota configuration")
	}

	count, err := g.QuotaUsage(ctx, ownerID)
	if err != nil {
		return Result{}, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   periodEndOf(g.now().UTC()),
	}, nil
}

// QuotaUsage returns the counted metered actions for the current period.
// Missing keys read as zero.
func (g *Gate) QuotaUsage(ctx context.Context, ownerID string) (int, error) {
	now := g.now().UTC()

	count, err := g.redis.Get(ctx, g.quotaKey(ownerID, periodOf(now))).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (g *Gate) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the first hit in the window owns the TTL.
	if count == 1 {
		if err := g.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (g *Gate) resetTime(ctx context.Context, key string, window time.Duration) (time.Time, error) {
	pttl, err := g.redis.PTTL(ctx, key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return g.now().Add(window), nil
	}
	return g.now().Add(pttl), nil
}

func decision(count int64, limit int, resetAt time.Time) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func periodOf(now time.Time) string {
	return now.Format("2006-01")
}

func periodEndOf(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
