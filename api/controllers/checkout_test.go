package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeCheckout struct {
	lastSession string
	shipping    checkout.ShippingInfoInput
	selection   *checkout.PaymentSelection
	intentCalls int
	recordedPI  string
	err         error
}

func (f *fakeCheckout) Initialize(_ context.Context, sid string) (*sessions.CheckoutSession, error) {
	f.lastSession = sid
	return &sessions.CheckoutSession{SessionID: sid, CheckoutID: "co-1", Step: enums.CheckoutStepStarted}, f.err
}

func (f *fakeCheckout) SubmitPersonalInfo(_ context.Context, sid string, _ checkout.PersonalInfoInput) (*checkout.StepResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.StepResult{NextStep: enums.CheckoutStepShippingInfo}, nil
}

func (f *fakeCheckout) SubmitShippingInfo(_ context.Context, _ string, input checkout.ShippingInfoInput) (*checkout.StepResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.shipping = input
	total := decimal.RequireFromString("100")
	return &checkout.StepResult{NextStep: enums.CheckoutStepPaymentSelection, CartTotal: &total}, nil
}

func (f *fakeCheckout) SelectPaymentMethod(_ context.Context, _ string, method string) (*checkout.PaymentSelection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.selection, nil
}

func (f *fakeCheckout) CreatePaymentIntent(_ context.Context, _ string) (*checkout.PaymentSelection, error) {
	f.intentCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.selection, nil
}

func (f *fakeCheckout) ConfirmNonCardPayment(_ context.Context, _ string, _ checkout.ManualConfirmation) (*checkout.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.Completion{OrderID: "ORD-1", Status: checkout.StatusCompleted}, nil
}

func (f *fakeCheckout) RecordPaymentSuccess(_ context.Context, _ string, pi string) (*checkout.Completion, error) {
	f.recordedPI = pi
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.Completion{OrderID: "ORD-2", Status: checkout.StatusCompleted, Duplicate: true}, nil
}

func (f *fakeCheckout) Abandon(_ context.Context, sid string) (*sessions.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sessions.CheckoutSession{SessionID: sid, CheckoutID: "co-1", Step: enums.CheckoutStepAbandoned}, nil
}

func (f *fakeCheckout) Status(_ context.Context, sid string) (*checkout.StatusView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.StatusView{ItemCount: 2}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func serve(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sid-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Error.Code
}

func TestCheckoutInitializeRequiresSession(t *testing.T) {
	svc := &fakeCheckout{}
	rec := httptest.NewRecorder()
	CheckoutInitialize(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/initialize", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCheckoutInitialize(t *testing.T) {
	svc := &fakeCheckout{}
	rec := serve(t, CheckoutInitialize(svc, testLogger()), http.MethodPost, "/api/checkout/initialize", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["checkoutId"] != "co-1" || data["step"] != "started" || svc.lastSession != "sid-1" {
		t.Fatalf("unexpected response %v", data)
	}
}

func TestCheckoutShippingInfoReadsZipCode(t *testing.T) {
	svc := &fakeCheckout{}
	body := `{"address":"1 Main","city":"Austin","state":"TX","zipCode":"78701","shippingMethod":"standard"}`
	rec := serve(t, CheckoutShippingInfo(svc, testLogger()), http.MethodPost, "/api/checkout/shipping-info", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.shipping.ZipCode != "78701" {
		t.Fatalf("zip not decoded: %+v", svc.shipping)
	}
	data := decodeData(t, rec)
	if data["success"] != true || data["nextStep"] != "payment_selection" || data["cartTotal"] != 100.0 {
		t.Fatalf("unexpected response %v", data)
	}
}

func TestCheckoutPersonalInfoMapsPrecondition(t *testing.T) {
	svc := &fakeCheckout{err: pkgerrors.New(pkgerrors.CodePrecondition, "checkout is processing a payment")}
	rec := serve(t, CheckoutPersonalInfo(svc, testLogger()), http.MethodPost, "/api/checkout/personal-info", `{"firstName":"A","lastName":"B"}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(pkgerrors.CodePrecondition) {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutPersonalInfoRejectsUnknownFields(t *testing.T) {
	svc := &fakeCheckout{}
	rec := serve(t, CheckoutPersonalInfo(svc, testLogger()), http.MethodPost, "/api/checkout/personal-info", `{"firstName":"A","lastName":"B","admin":true}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutPaymentMethodManual(t *testing.T) {
	svc := &fakeCheckout{selection: &checkout.PaymentSelection{
		Method:       enums.PaymentMethodZelle,
		Amount:       2500,
		Instructions: &checkout.Instructions{Method: enums.PaymentMethodZelle, PayTo: "pay@shop.test", Amount: decimal.RequireFromString("25")},
		NextStep:     enums.CheckoutStepCompleted,
	}}
	rec := serve(t, CheckoutPaymentMethod(svc, testLogger()), http.MethodPost, "/api/checkout/payment-method", `{"paymentMethod":"zelle"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if _, ok := data["clientSecret"]; ok {
		t.Fatal("manual selection should not carry a client secret")
	}
	inst, ok := data["instructions"].(map[string]any)
	if !ok || inst["payTo"] != "pay@shop.test" || data["nextStep"] != "completed" {
		t.Fatalf("unexpected response %v", data)
	}
}

func TestCheckoutPaymentMethodRequiresMethod(t *testing.T) {
	svc := &fakeCheckout{}
	rec := serve(t, CheckoutPaymentMethod(svc, testLogger()), http.MethodPost, "/api/checkout/payment-method", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreatePaymentIntentIgnoresClientAmount(t *testing.T) {
	svc := &fakeCheckout{selection: &checkout.PaymentSelection{ClientSecret: "pi_1_secret", Amount: 10000, ItemCount: 3}}
	rec := serve(t, CreatePaymentIntent(svc, testLogger()), http.MethodPost, "/api/create-payment-intent", `{"amount":1,"cartItems":[{"id":"x"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["clientSecret"] != "pi_1_secret" || data["amount"] != 10000.0 || data["itemCount"] != 3.0 {
		t.Fatalf("unexpected response %v", data)
	}
	if svc.intentCalls != 1 {
		t.Fatalf("expected one intent call, got %d", svc.intentCalls)
	}
}

func TestCreatePaymentIntentAcceptsCustomerFields(t *testing.T) {
	svc := &fakeCheckout{selection: &checkout.PaymentSelection{ClientSecret: "pi_2_secret", Amount: 6500, ItemCount: 2}}
	body := `{"amount":65,"cartItems":[],"firstName":"Jane","lastName":"Doe","email":"jane@example.com",` +
		`"phone":"555-0100","address":"1 Main St","city":"X","state":"TX","zipCode":"75001","zip":"75001",` +
		`"shippingMethod":"standard","currency":"usd"}`
	rec := serve(t, CreatePaymentIntent(svc, testLogger()), http.MethodPost, "/api/create-payment-intent", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.intentCalls != 1 {
		t.Fatalf("expected one intent call, got %d", svc.intentCalls)
	}

	rec = serve(t, CreatePaymentIntent(svc, testLogger()), http.MethodPost, "/api/create-payment-intent", `{"couponCode":"FREE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("fields outside the documented body should still be rejected, got %d", rec.Code)
	}
}

func TestCreatePaymentIntentSurfacesGatewayError(t *testing.T) {
	svc := &fakeCheckout{err: pkgerrors.New(pkgerrors.CodeGateway, "card_declined")}
	rec := serve(t, CreatePaymentIntent(svc, testLogger()), http.MethodPost, "/api/create-payment-intent", ``)
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != string(pkgerrors.CodeGateway) {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestRecordPaymentSuccess(t *testing.T) {
	svc := &fakeCheckout{}
	rec := serve(t, RecordPaymentSuccess(svc, testLogger()), http.MethodPost, "/api/record-payment-success", `{"paymentIntentId":"pi_9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if svc.recordedPI != "pi_9" || data["orderId"] != "ORD-2" || data["status"] != "completed" || data["duplicate"] != true {
		t.Fatalf("unexpected response %v", data)
	}

	rec = serve(t, RecordPaymentSuccess(svc, testLogger()), http.MethodPost, "/api/record-payment-success", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without paymentIntentId, got %d", rec.Code)
	}
}

func TestCheckoutAbandonAndStatus(t *testing.T) {
	svc := &fakeCheckout{}
	rec := serve(t, CheckoutAbandon(svc, testLogger()), http.MethodPost, "/api/checkout/abandon", "")
	if data := decodeData(t, rec); data["step"] != "abandoned" {
		t.Fatalf("unexpected abandon response %v", data)
	}
	rec = serve(t, CheckoutStatus(svc, testLogger()), http.MethodGet, "/api/checkout/status", "")
	if data := decodeData(t, rec); data["itemCount"] != 2.0 {
		t.Fatalf("unexpected status response %v", data)
	}
}
