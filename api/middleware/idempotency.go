package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 255
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// replayTTLs lists the mutating routes that honour Idempotency-Key, keyed by
// "METHOD pattern". Payment confirmation keeps its records for a week.
var replayTTLs = map[string]time.Duration{
	"POST /api/cart/items":              defaultIdempotencyTTL,
	"POST /api/create-payment-intent":   defaultIdempotencyTTL,
	"POST /api/checkout/payment-method": defaultIdempotencyTTL,
	"POST /api/record-payment-success":  criticalIdempotencyTTL,
	"POST /api/checkout/confirm-manual": criticalIdempotencyTTL,
}

type idempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// storedResponse is the replayable part of a 2xx response.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

type replayGuard struct {
	store idempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key within the same session and route. Requests without the
// header are not tracked, and failed responses are never stored.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &replayGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, tracked := routeTTL(r.Method, matchedPattern(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !tracked || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, clientKey, ttl)
		})
	}
}

func (g *replayGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, clientKey string, ttl time.Duration) {
	ctx := r.Context()
	if len(clientKey) > maxIdempotencyKeyLen {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	key := g.store.IdempotencyKey(SessionIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)
	fingerprint := fingerprintBody(body)

	prior, err := g.lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if prior != nil {
		if prior.Fingerprint != fingerprint {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused with different request body"))
			return
		}
		prior.replay(w)
		return
	}

	capture := &capturingWriter{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	if capture.status() < 200 || capture.status() > 299 {
		return
	}
	g.remember(ctx, key, ttl, storedResponse{
		Status:      capture.status(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.buf.Bytes(),
		Fingerprint: fingerprint,
	})
}

func (g *replayGuard) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record")
	}
	return &prior, nil
}

func (g *replayGuard) remember(ctx context.Context, key string, ttl time.Duration, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_, err = g.store.SetNX(ctx, key, string(payload), ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "failed to store idempotency record", err)
	}
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// matchedPattern prefers chi's route pattern; while routing is still inside a
// mounted subrouter the pattern ends in a wildcard and the raw path is used.
func matchedPattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "*") {
			return p
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := replayTTLs[method+" "+pattern]
	return ttl, ok
}

type capturingWriter struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.code == 0 {
		c.code = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capturingWriter) status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}
