package webhooks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const secret = "whsec_test"

var payload = []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`)

type fakeHandler struct {
	calls int
	err   error
}

func (f *fakeHandler) HandleEvent(_ context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newGuard(t *testing.T) *stripewebhook.EventGuard {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	guard, err := stripewebhook.NewEventGuard(pkgredis.NewFromRaw(raw), time.Hour, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func signedRequest(body []byte, signingSecret string) *http.Request {
	header := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    signingSecret,
		Timestamp: time.Now(),
	}).Header
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	return req
}

func TestStripeWebhookProcessesOnce(t *testing.T) {
	logg := testLogger()
	svc := &fakeHandler{}
	handler := StripeWebhook(stripewebhook.NewVerifier(secret, logg), svc, newGuard(t), logg)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(payload, secret))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if strings.TrimSpace(rec.Body.String()) != `{"received":true}` {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
	}
	if svc.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", svc.calls)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	logg := testLogger()
	svc := &fakeHandler{}
	handler := StripeWebhook(stripewebhook.NewVerifier(secret, logg), svc, newGuard(t), logg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, "whsec_wrong"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("unverified event must not be dispatched")
	}
}

func TestStripeWebhookAcknowledgesProcessingFailureAndAllowsResend(t *testing.T) {
	logg := testLogger()
	svc := &fakeHandler{err: errors.New("sink down")}
	handler := StripeWebhook(stripewebhook.NewVerifier(secret, logg), svc, newGuard(t), logg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, secret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite failure, got %d", rec.Code)
	}

	svc.err = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload, secret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.calls != 2 {
		t.Fatalf("released event should be processed on resend, calls=%d", svc.calls)
	}
}

func TestStripeWebhookWithoutSecretAcceptsUnsigned(t *testing.T) {
	logg := testLogger()
	svc := &fakeHandler{}
	handler := StripeWebhook(stripewebhook.NewVerifier("", logg), svc, nil, logg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload)))
	if rec.Code != http.StatusOK || svc.calls != 1 {
		t.Fatalf("expected dispatch, got code=%d calls=%d", rec.Code, svc.calls)
	}
}
