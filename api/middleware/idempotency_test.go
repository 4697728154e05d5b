package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func newReplayStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.NewFromRaw(raw), mr
}

// paymentIntentCall builds a request as chi sees it once routing completed.
func paymentIntentCall(sessionID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/create-payment-intent"}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	req = req.WithContext(WithSessionID(ctx, sessionID))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

type countingHandler struct {
	calls  int
	status func(call int) int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	status := http.StatusOK
	if h.status != nil {
		status = h.status(h.calls)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(h.calls) + `}`))
}

func TestRouteTTL(t *testing.T) {
	cases := map[string]struct {
		method, pattern string
		ttl             time.Duration
		tracked         bool
	}{
		"cart add":       {http.MethodPost, "/api/cart/items", defaultIdempotencyTTL, true},
		"intent":         {http.MethodPost, "/api/create-payment-intent", defaultIdempotencyTTL, true},
		"payment method": {http.MethodPost, "/api/checkout/payment-method", defaultIdempotencyTTL, true},
		"record success": {http.MethodPost, "/api/record-payment-success", criticalIdempotencyTTL, true},
		"manual confirm": {http.MethodPost, "/api/checkout/confirm-manual", criticalIdempotencyTTL, true},
		"personal info":  {http.MethodPost, "/api/checkout/personal-info", 0, false},
		"cart read":      {http.MethodGet, "/api/cart/items", 0, false},
	}
	for name, tc := range cases {
		ttl, tracked := routeTTL(tc.method, tc.pattern)
		assert.Equal(t, tc.tracked, tracked, name)
		assert.Equal(t, tc.ttl, ttl, name)
	}
}

func TestIdempotencyWithoutKeyIsUntracked(t *testing.T) {
	store, mr := newReplayStore(t)
	h := &countingHandler{}
	mw := Idempotency(store, nil)(h)

	mw.ServeHTTP(httptest.NewRecorder(), paymentIntentCall("sid-1", "", `{}`))
	mw.ServeHTTP(httptest.NewRecorder(), paymentIntentCall("sid-1", "", `{}`))

	assert.Equal(t, 2, h.calls)
	assert.Empty(t, mr.Keys())
}

func TestIdempotencyReplaysFirstSuccess(t *testing.T) {
	store, mr := newReplayStore(t)
	h := &countingHandler{status: func(int) int { return http.StatusCreated }}
	mw := Idempotency(store, nil)(h)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, paymentIntentCall("sid-1", "abc", `{}`))
	second := httptest.NewRecorder()
	mw.ServeHTTP(second, paymentIntentCall("sid-1", "abc", `{}`))

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, defaultIdempotencyTTL, mr.TTL(keys[0]))
}

func TestIdempotencyKeysAreSessionScoped(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{}
	mw := Idempotency(store, nil)(h)

	mw.ServeHTTP(httptest.NewRecorder(), paymentIntentCall("sid-1", "same", `{}`))
	mw.ServeHTTP(httptest.NewRecorder(), paymentIntentCall("sid-2", "same", `{}`))

	assert.Equal(t, 2, h.calls)
}

func TestIdempotencyRetriesAfterFailure(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{status: func(call int) int {
		if call == 1 {
			return http.StatusBadGateway
		}
		return http.StatusOK
	}}
	mw := Idempotency(store, nil)(h)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, paymentIntentCall("sid-1", "retry", `{}`))
	second := httptest.NewRecorder()
	mw.ServeHTTP(second, paymentIntentCall("sid-1", "retry", `{}`))

	assert.Equal(t, http.StatusBadGateway, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, h.calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	store, _ := newReplayStore(t)
	mw := Idempotency(store, nil)(&countingHandler{})

	mw.ServeHTTP(httptest.NewRecorder(), paymentIntentCall("sid-1", "xyz", `{"amount":1}`))
	resp := httptest.NewRecorder()
	mw.ServeHTTP(resp, paymentIntentCall("sid-1", "xyz", `{"amount":2}`))

	require.Equal(t, http.StatusConflict, resp.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeConflict), body.Error.Code)
}

func TestIdempotencyRejectsOversizedKey(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{}
	resp := httptest.NewRecorder()
	Idempotency(store, nil)(h).ServeHTTP(resp, paymentIntentCall("sid-1", strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, h.calls)
}
