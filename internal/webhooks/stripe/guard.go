package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultGuardTTL outlives Stripe's three day redelivery window.
const DefaultGuardTTL = 72 * time.Hour

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// EventGuard records which event ids were already taken by a delivery, so
// redeliveries and concurrent duplicates short-circuit.
type EventGuard struct {
	store claimStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewEventGuard(store claimStore, ttl time.Duration, scope string) (*EventGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case scope == "":
		return nil, errors.New("scope is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultGuardTTL
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// Claim reports true for the first caller with eventID. The stored value is
// the claim time, which helps when inspecting stuck events by hand.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Release drops the claim after a failed handling attempt so Stripe's retry
// is processed.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID)); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}
