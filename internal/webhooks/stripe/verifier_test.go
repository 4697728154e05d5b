package stripewebhook

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const testSecret = "whsec_test"

var testPayload = []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

func signed(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	out := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return out.Header
}

func TestVerifierAcceptsValidSignature(t *testing.T) {
	v := NewVerifier(testSecret, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	event, err := v.Parse(context.Background(), testPayload, signed(t, testPayload, testSecret))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "payment_intent.succeeded" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestVerifierRejectsBadSignature(t *testing.T) {
	v := NewVerifier(testSecret, nil)
	ctx := context.Background()

	if _, err := v.Parse(ctx, testPayload, signed(t, testPayload, "whsec_other")); !pkgerrors.HasCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if _, err := v.Parse(ctx, testPayload, ""); !pkgerrors.HasCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected signature error for missing header, got %v", err)
	}
}

func TestVerifierWithoutSecretParsesUnverified(t *testing.T) {
	v := NewVerifier("", logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	event, err := v.Parse(context.Background(), testPayload, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if _, err := v.Parse(context.Background(), []byte("not json"), ""); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
