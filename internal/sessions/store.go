package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const defaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned when no checkout state exists for the session.
	ErrNotFound = errors.New("checkout session not found")
	// ErrVersionMismatch is returned when the stored session moved on since it was read.
	ErrVersionMismatch = errors.New("checkout session changed concurrently")
	// ErrNoChange lets a MutateFunc skip the write.
	ErrNoChange = errors.New("checkout session unchanged")
)

// MutateFunc derives the next session from the stored one. current is nil
// when nothing is stored. It can run more than once under contention and
// must not have side effects.
type MutateFunc func(current *CheckoutSession) (*CheckoutSession, error)

// Store is the session persistence the checkout flow depends on.
type Store interface {
	Get(ctx context.Context, sessionID string) (*CheckoutSession, error)
	Save(ctx context.Context, session *CheckoutSession) (*CheckoutSession, error)
	Update(ctx context.Context, sessionID string, fn MutateFunc) (*CheckoutSession, error)
	SetCartCleared(ctx context.Context, sessionID, checkoutID string, cleared bool) (bool, error)
}

type redisClient interface {
	Get(ctx context.Context, key string) (string, error)
	CompareAndSwap(ctx context.Context, key string, ttl time.Duration, fn pkgredis.SwapFunc) error
	CheckoutSessionKey(sessionID string) string
}

// RedisStore keeps checkout sessions as JSON documents in Redis. Every write
// is a WATCH/MULTI compare-and-swap and refreshes the TTL.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client redisClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	raw, err := s.client.Get(ctx, s.client.CheckoutSessionKey(sessionID))
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	return decode(raw)
}

// Save writes session only if the stored version still equals
// session.Version. A zero version means the caller expects no stored state.
func (s *RedisStore) Save(ctx context.Context, session *CheckoutSession) (*CheckoutSession, error) {
	if session == nil || session.SessionID == "" {
		return nil, errors.New("session id required")
	}
	expected := session.Version
	return s.Update(ctx, session.SessionID, func(current *CheckoutSession) (*CheckoutSession, error) {
		var stored int64
		if current != nil {
			stored = current.Version
		}
		if stored != expected {
			return nil, ErrVersionMismatch
		}
		return session.Clone(), nil
	})
}

func (s *RedisStore) Update(ctx context.Context, sessionID string, fn MutateFunc) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	var (
		result    *CheckoutSession
		unchanged bool
	)
	err := s.client.CompareAndSwap(ctx, s.client.CheckoutSessionKey(sessionID), s.ttl, func(raw string, exists bool) (string, error) {
		var current *CheckoutSession
		if exists {
			decoded, err := decode(raw)
			if err != nil {
				return "", err
			}
			current = decoded
		}

		next, err := fn(current.Clone())
		if errors.Is(err, ErrNoChange) {
			result, unchanged = current, true
			return "", pkgredis.ErrAbortSwap
		}
		if err != nil {
			return "", err
		}
		if next == nil {
			return "", errors.New("mutation returned nil session")
		}

		now := s.now().UTC()
		next.SessionID = sessionID
		if current != nil {
			next.Version = current.Version + 1
			next.CreatedAt = current.CreatedAt
		} else {
			next.Version = 1
			next.CreatedAt = now
		}
		next.UpdatedAt = now

		encoded, err := json.Marshal(next)
		if err != nil {
			return "", fmt.Errorf("encode checkout session: %w", err)
		}
		result = next
		return string(encoded), nil
	})
	if unchanged && errors.Is(err, pkgredis.ErrAbortSwap) {
		if result == nil {
			return nil, ErrNotFound
		}
		return result, nil
	}
	if errors.Is(err, pkgredis.ErrCASConflict) {
		return nil, ErrVersionMismatch
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetCartCleared flips the cart-cleared flag of checkoutID and reports
// whether this call changed it. Only one concurrent caller can observe
// changed=true. Once the session has moved on to another checkout the call
// is a no-op, so a late signal for an old payment leaves the new cart alone.
// A session that expired before payment settled is recreated as completed
// so a replayed signal still sees the flag.
func (s *RedisStore) SetCartCleared(ctx context.Context, sessionID, checkoutID string, cleared bool) (bool, error) {
	var changed bool
	_, err := s.Update(ctx, sessionID, func(current *CheckoutSession) (*CheckoutSession, error) {
		changed = false
		if current == nil {
			if !cleared {
				return nil, ErrNoChange
			}
			current = &CheckoutSession{CheckoutID: checkoutID, Step: enums.CheckoutStepCompleted}
		}
		if checkoutID != "" && current.CheckoutID != "" && current.CheckoutID != checkoutID {
			return nil, ErrNoChange
		}
		if current.CartCleared == cleared {
			return nil, ErrNoChange
		}
		current.CartCleared = cleared
		changed = true
		return current, nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

func decode(raw string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}
