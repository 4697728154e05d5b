package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckoutService struct {
	intents *int
}

func (stubCheckoutService) Initialize(_ context.Context, sid string) (*sessions.CheckoutSession, error) {
	return &sessions.CheckoutSession{SessionID: sid, CheckoutID: "co-" + sid, Step: enums.CheckoutStepStarted}, nil
}

func (stubCheckoutService) SubmitPersonalInfo(context.Context, string, checkout.PersonalInfoInput) (*checkout.StepResult, error) {
	return &checkout.StepResult{NextStep: enums.CheckoutStepShippingInfo}, nil
}

func (stubCheckoutService) SubmitShippingInfo(context.Context, string, checkout.ShippingInfoInput) (*checkout.StepResult, error) {
	return &checkout.StepResult{NextStep: enums.CheckoutStepPaymentSelection}, nil
}

func (stubCheckoutService) SelectPaymentMethod(context.Context, string, string) (*checkout.PaymentSelection, error) {
	return &checkout.PaymentSelection{Method: enums.PaymentMethodCard}, nil
}

func (s stubCheckoutService) CreatePaymentIntent(context.Context, string) (*checkout.PaymentSelection, error) {
	*s.intents++
	return &checkout.PaymentSelection{ClientSecret: "secret", Amount: 100, ItemCount: 1}, nil
}

func (stubCheckoutService) ConfirmNonCardPayment(context.Context, string, checkout.ManualConfirmation) (*checkout.Completion, error) {
	return &checkout.Completion{Status: checkout.StatusCompleted}, nil
}

func (stubCheckoutService) RecordPaymentSuccess(context.Context, string, string) (*checkout.Completion, error) {
	return &checkout.Completion{Status: checkout.StatusCompleted}, nil
}

func (stubCheckoutService) Abandon(_ context.Context, sid string) (*sessions.CheckoutSession, error) {
	return &sessions.CheckoutSession{SessionID: sid, Step: enums.CheckoutStepAbandoned}, nil
}

func (stubCheckoutService) Status(context.Context, string) (*checkout.StatusView, error) {
	return &checkout.StatusView{}, nil
}

type stubCartService struct{}

func (stubCartService) Summary(context.Context, string) (*cart.Summary, error) {
	return &cart.Summary{}, nil
}

func (stubCartService) Add(context.Context, string, cart.AddItemInput) (*cart.Summary, error) {
	return &cart.Summary{}, nil
}

func (stubCartService) Remove(context.Context, string, uuid.UUID) (*cart.Summary, error) {
	return &cart.Summary{}, nil
}

func (stubCartService) Clear(context.Context, string) error {
	return nil
}

type stubWebhookService struct {
	calls *int
}

func (s stubWebhookService) HandleEvent(context.Context, *stripe.Event) error {
	*s.calls++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		Session: config.SessionConfig{
			Secret:     "secret",
			Issuer:     "storefront",
			CookieName: "sf_session",
			TTL:        time.Hour,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://shop.test"}},
	}
}

type testRouter struct {
	http.Handler
	intents  int
	webhooks int
}

func newTestRouter(t *testing.T, cfg *config.Config) *testRouter {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	redisClient := redis.NewFromRaw(raw)
	guard, err := stripewebhook.NewEventGuard(redisClient, 0, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	tr := &testRouter{}
	tr.Handler = NewRouter(
		cfg,
		logg,
		stubPinger{},
		redisClient,
		nil,
		stubCheckoutService{intents: &tr.intents},
		stubCartService{},
		stripewebhook.NewVerifier("", logg),
		stubWebhookService{calls: &tr.webhooks},
		guard,
	)
	return tr
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyPingsDependencies(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestCheckoutRoutesIssueSessionCookie(t *testing.T) {
	router := newTestRouter(t, testConfig())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/checkout/initialize", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sf_session" {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
}

func TestWebhookSkipsSessionMiddleware(t *testing.T) {
	router := newTestRouter(t, testConfig())
	body := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`
	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body)))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
		if len(resp.Result().Cookies()) != 0 {
			t.Fatal("webhook must not receive a shopper cookie")
		}
	}
	if router.webhooks != 1 {
		t.Fatalf("redelivered event should be skipped, calls=%d", router.webhooks)
	}
}

func TestPaymentIntentReplayedByIdempotencyKey(t *testing.T) {
	router := newTestRouter(t, testConfig())

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", nil))
	cookie := first.Result().Cookies()[0]

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", strings.NewReader(`{}`))
		req.AddCookie(cookie)
		req.Header.Set("Idempotency-Key", "k1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}
	if router.intents != 2 {
		t.Fatalf("expected 2 intent calls (one unkeyed, one keyed), got %d", router.intents)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/api/checkout/initialize", nil)
	req.Header.Set("Origin", "https://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.test" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if resp.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials should be allowed")
	}
}
