package middleware

import "context"

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	requestIDKey
)

// SessionIDFromContext returns the shopper session id set by Session, or "".
func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(orBackground(ctx), sessionIDKey, sessionID)
}

// RequestIDFromContext returns the id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
