package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	checkoutService controllers.CheckoutService,
	cartService cart.Service,
	stripeVerifier webhookcontrollers.StripeEventParser,
	stripeWebhookService webhookcontrollers.StripeEventHandler,
	stripeWebhookGuard *stripewebhook.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	checks := []controllers.ReadinessCheck{{Name: "db", Pinger: dbP}}
	if redisClient != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Stripe calls without a shopper cookie; the signature authenticates it.
		var guard webhookcontrollers.StripeEventGuard
		if stripeWebhookGuard != nil {
			guard = stripeWebhookGuard
		}
		r.Post("/webhook", webhookcontrollers.StripeWebhook(stripeVerifier, stripeWebhookService, guard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, logg))
			if redisClient != nil {
				r.Use(middleware.Idempotency(redisClient, logg))
			}

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/initialize", controllers.CheckoutInitialize(checkoutService, logg))
				r.Post("/personal-info", controllers.CheckoutPersonalInfo(checkoutService, logg))
				r.Post("/shipping-info", controllers.CheckoutShippingInfo(checkoutService, logg))
				r.Post("/payment-method", controllers.CheckoutPaymentMethod(checkoutService, logg))
				r.Post("/confirm-manual", controllers.CheckoutConfirmManual(checkoutService, logg))
				r.Post("/abandon", controllers.CheckoutAbandon(checkoutService, logg))
				r.Get("/status", controllers.CheckoutStatus(checkoutService, logg))
			})
			r.Post("/create-payment-intent", controllers.CreatePaymentIntent(checkoutService, logg))
			r.Post("/record-payment-success", controllers.RecordPaymentSuccess(checkoutService, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(cartService, logg))
				r.Post("/items", controllers.CartAddItem(cartService, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(cartService, logg))
			})
		})
	})

	return r
}
