package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCacheSetGet(t *testing.T) {
	_, client := newRedis(t)
	c := NewRedisCache(client, "checkout")
	ctx := context.Background()

	key := c.GenerateKey("idempotency", "7:abc")
	if key != "checkout:idempotency:7:abc" {
		t.Fatalf("key = %q", key)
	}
	if v, err := c.Get(ctx, key); err != nil || v != "" {
		t.Fatalf("missing key: got %q, %v", v, err)
	}
	if err := c.Set(ctx, key, 42, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := c.Get(ctx, key); err != nil || v != "42" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestRedisLockerExclusive(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, "checkout")
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "order:1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "order:1", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire err = %v, want ErrLocked", err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if mr.Exists("checkout:lock:order:1") {
		t.Fatalf("lock key must be deleted on release")
	}
	if _, err := l.Acquire(ctx, "order:1", time.Minute); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestRedisLockerStaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, "checkout")
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "order:2", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := l.Acquire(ctx, "order:2", time.Minute); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if err := stale(ctx); err != nil {
		t.Fatalf("stale unlock: %v", err)
	}
	if !mr.Exists("checkout:lock:order:2") {
		t.Fatalf("stale owner must not release the new lease")
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache("checkout").(*memoryCache)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("got %q", v)
	}
	now = now.Add(2 * time.Minute)
	if v, _ := c.Get(ctx, "k"); v != "" {
		t.Fatalf("expired entry returned %q", v)
	}
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker().(*memoryLocker)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "order:1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "order:1", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("want ErrLocked, got %v", err)
	}
	_ = unlock(ctx)
	if _, err := l.Acquire(ctx, "order:1", time.Minute); err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := l.Acquire(ctx, "order:1", time.Minute); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
}
