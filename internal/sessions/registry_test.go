package sessions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	reg := NewRegistry(client, "test:", clock.Now)
	return reg, clock, func() {
		_ = client.Close()
		mr.Close()
	}
}

func testRecord(clock *fakeClock, tokenID, ownerID string, ttl time.Duration) *Record {
	return &Record{
		TokenID:   tokenID,
		OwnerID:   ownerID,
		CreatedAt: clock.Now().Unix(),
		ExpiresAt: clock.Now().Add(ttl).Unix(),
	}
}

func TestPersistAndGet(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	rec := testRecord(clock, "jti-1", "owner-1", time.Hour)
	if err := reg.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	got, err := reg.Get(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OwnerID != "owner-1" {
		t.Fatalf("owner = %q, want owner-1", got.OwnerID)
	}
	if got.Revoked {
		t.Fatal("fresh record reported revoked")
	}
	if got.CreatedAt != rec.CreatedAt || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("timestamps mismatch: got %d/%d want %d/%d",
			got.CreatedAt, got.ExpiresAt, rec.CreatedAt, rec.ExpiresAt)
	}
}

func TestGetUnknown(t *testing.T) {
	reg, _, done := newTestRegistry(t)
	defer done()

	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetAfterExpiry(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if err := reg.Persist(ctx, testRecord(clock, "jti-1", "owner-1", time.Minute)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	clock.Advance(time.Minute)

	if _, err := reg.Get(ctx, "jti-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired at boundary", err)
	}
}

func TestPersistRejectsExpiredRecord(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()

	rec := testRecord(clock, "jti-1", "owner-1", -time.Minute)
	if err := reg.Persist(context.Background(), rec); err == nil {
		t.Fatal("Persist accepted an already expired record")
	}
}

func TestRotateReturnsPriorState(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if err := reg.Persist(ctx, testRecord(clock, "jti-1", "owner-1", time.Hour)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	rec, err := reg.Rotate(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rec.Revoked {
		t.Fatal("prior state should not be revoked")
	}
	if rec.OwnerID != "owner-1" {
		t.Fatalf("owner = %q", rec.OwnerID)
	}

	got, err := reg.Get(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Get after rotate failed: %v", err)
	}
	if !got.Revoked {
		t.Fatal("record not marked revoked after rotate")
	}
}

func TestRotateTwiceSecondLoses(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if err := reg.Persist(ctx, testRecord(clock, "jti-1", "owner-1", time.Hour)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	if _, err := reg.Rotate(ctx, "jti-1"); err != nil {
		t.Fatalf("first Rotate failed: %v", err)
	}
	if _, err := reg.Rotate(ctx, "jti-1"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("second Rotate err = %v, want ErrRevoked", err)
	}
}

func TestRotateExpiredRecord(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if err := reg.Persist(ctx, testRecord(clock, "jti-1", "owner-1", time.Minute)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	clock.Advance(2 * time.Minute)

	if _, err := reg.Rotate(ctx, "jti-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if err := reg.Persist(ctx, testRecord(clock, "jti-race", "owner-1", time.Hour)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	const goroutines = 16
	var wins, losses atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Rotate(ctx, "jti-race")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRevoked):
				losses.Add(1)
			default:
				t.Errorf("unexpected rotate error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
	if losses.Load() != goroutines-1 {
		t.Fatalf("losers = %d, want %d", losses.Load(), goroutines-1)
	}
}

func TestRevokeAll(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"jti-a", "jti-b", "jti-c"} {
		if err := reg.Persist(ctx, testRecord(clock, id, "owner-1", time.Hour)); err != nil {
			t.Fatalf("Persist %s failed: %v", id, err)
		}
	}
	if err := reg.Persist(ctx, testRecord(clock, "jti-other", "owner-2", time.Hour)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// One session already retired; RevokeAll should skip it.
	if _, err := reg.Revoke(ctx, "jti-b"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err := reg.RevokeAll(ctx, "owner-1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if len(revoked) != 2 {
		t.Fatalf("revoked %d records, want 2", len(revoked))
	}

	for _, id := range []string{"jti-a", "jti-b", "jti-c"} {
		got, err := reg.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s failed: %v", id, err)
		}
		if !got.Revoked {
			t.Fatalf("%s not revoked", id)
		}
	}

	// Unrelated owner untouched.
	got, err := reg.Get(ctx, "jti-other")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Revoked {
		t.Fatal("other owner's session was revoked")
	}
}

func TestRevokeAllUnknownOwner(t *testing.T) {
	reg, _, done := newTestRegistry(t)
	defer done()

	revoked, err := reg.RevokeAll(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if len(revoked) != 0 {
		t.Fatalf("revoked %d records for unknown owner", len(revoked))
	}
}

func TestOwnerSessionCount(t *testing.T) {
	reg, clock, done := newTestRegistry(t)
	defer done()
	ctx := context.Background()

	if n, err := reg.OwnerSessionCount(ctx, "owner-1"); err != nil || n != 0 {
		t.Fatalf("count = %d, err = %v, want 0, nil", n, err)
	}

	for _, id := range []string{"jti-a", "jti-b"} {
		if err := reg.Persist(ctx, testRecord(clock, id, "owner-1", time.Hour)); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}

	n, err := reg.OwnerSessionCount(ctx, "owner-1")
	if err != nil {
		t.Fatalf("OwnerSessionCount failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := &Record{
		OwnerID:   "owner-xyz",
		CreatedAt: 1748779200,
		ExpiresAt: 1751371200,
		Revoked:   true,
	}

	data, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.OwnerID != rec.OwnerID || got.CreatedAt != rec.CreatedAt ||
		got.ExpiresAt != rec.ExpiresAt || got.Revoked != rec.Revoked {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{},
		{2, 0, 0, 0},
		make([]byte, 19),
	} {
		if _, err := decodeRecord(data); err == nil {
			t.Fatalf("decode accepted corrupt input of len %d", len(data))
		}
	}
}
