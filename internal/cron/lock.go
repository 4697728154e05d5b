package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 5 * time.Minute

// Lock elects the one cron worker allowed to run a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock stores a random token under the lock key. A worker that dies
// mid-cycle holds the lock for at most ttl.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, name string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case name == "":
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	switch {
	case err != nil:
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	case won:
		l.token = token
	}
	return won, nil
}

// Release is a no-op unless the key still holds this worker's token, so an
// expired lock taken over by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.token
	l.token = ""
	if token == "" {
		return nil
	}

	stored, err := l.store.Get(ctx, l.key)
	if errors.Is(err, goredis.Nil) || (err == nil && stored != token) {
		return nil
	}
	if err == nil {
		err = l.store.Del(ctx, l.key)
	}
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
