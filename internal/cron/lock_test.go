package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func newLockStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.NewFromRaw(raw), mr
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	first, err := NewRedisLock(store, "cron-worker:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, err := NewRedisLock(store, "cron-worker:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL(store.LockKey("cron-worker:test")); ttl != time.Minute {
		t.Fatalf("expected lock ttl 1m, got %s", ttl)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if !mr.Exists(store.LockKey("cron-worker:test")) {
		t.Fatal("non-owner release must not delete the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	lock, err := NewRedisLock(store, "expiring", time.Second)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Second)

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}

func TestRedisLockLeavesTakenOverKey(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	stale, err := NewRedisLock(store, "takeover", time.Second)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	fresh, err := NewRedisLock(store, "takeover", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := stale.Acquire(ctx); err != nil || !ok {
		t.Fatalf("stale acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Second)
	if ok, err := fresh.Acquire(ctx); err != nil || !ok {
		t.Fatalf("fresh acquire: ok=%v err=%v", ok, err)
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(store.LockKey("takeover")) {
		t.Fatal("stale owner deleted the new owner's lock")
	}
}
