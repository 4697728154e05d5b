package redis

import "strings"

// Every key lives under "sf:<kind>:..." so one Redis can be shared with
// other services.
const keyNamespace = "sf"

type keyKind string

const (
	kindIdempotency keyKind = "idempotency"
	kindCheckout    keyKind = "checkout"
	kindCache       keyKind = "cache"
	kindLock        keyKind = "lock"
)

func key(kind keyKind, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(string(kind))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(kindIdempotency, scope, id)
}

// CheckoutSessionKey holds a shopper's checkout state.
func (c *Client) CheckoutSessionKey(sessionID string) string {
	return key(kindCheckout, sessionID)
}

func (c *Client) CacheKey(scope, id string) string {
	return key(kindCache, scope, id)
}

func (c *Client) LockKey(name string) string {
	return key(kindLock, name)
}
