package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/internal/tracking"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api", bootstrap.Needs{Redis: true})
	defer proc.Close()
	ctx, stop := proc.SignalContext()
	defer stop()
	cfg, logg, dbClient, redisClient := proc.Config, proc.Logger, proc.DB, proc.Redis

	airtableClient, err := proc.Airtable()
	proc.Must(ctx, "failed to create airtable client", err)
	if airtableClient == nil {
		proc.Must(ctx, "airtable credentials are required for the product catalog", errors.New("airtable not configured"))
	}

	registry := bootstrap.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Records:  airtableClient,
		Cache:    redisClient,
		Table:    cfg.Airtable.ProductsTable,
		CacheTTL: cfg.Airtable.CatalogCacheTTL,
		Logger:   logg,
	})
	proc.Must(ctx, "failed to create catalog service", err)

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, catalogService)
	proc.Must(ctx, "failed to create cart service", err)

	sessionStore, err := sessions.NewRedisStore(redisClient, cfg.Session.TTL)
	proc.Must(ctx, "failed to create session store", err)

	tracker, err := tracking.NewAirtableTracker(airtableClient, cfg.Airtable.CheckoutsTable, logg)
	proc.Must(ctx, "failed to create checkout tracker", err)

	materializer, err := orders.NewMaterializer(orders.MaterializerParams{
		DB:       dbClient,
		Repo:     orders.NewRepository(dbClient.DB()),
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Sessions: sessionStore,
		Cart:     cartService,
		Logger:   logg,
		Metrics:  checkoutMetrics,
	})
	proc.Must(ctx, "failed to create order materializer", err)

	// card payments and the webhook only exist when a Stripe key is set
	var (
		stripeClient *pkgstripe.Client
		gateway      payments.Gateway
	)
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		proc.Must(ctx, "failed to create stripe client", err)
		stripeGateway, err := payments.NewStripeGateway(stripeClient)
		proc.Must(ctx, "failed to create payment gateway", err)
		gateway = stripeGateway
	} else {
		logg.Warn(ctx, "stripe api key not set, card payments disabled")
	}

	shippingRates, err := checkout.ParseShippingRates(cfg.Shipping.Rates)
	proc.Must(ctx, "invalid shipping rates", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Sessions: sessionStore,
		Cart:     cartService,
		Gateway:  gateway,
		Orders:   materializer,
		Tracker:  tracker,
		Shipping: shippingRates,
		Manual:   checkout.ManualPaymentsFromConfig(cfg.PaymentMethods),
		Currency: cfg.App.Currency,
		Logger:   logg,
		Metrics:  checkoutMetrics,
	})
	proc.Must(ctx, "failed to create checkout service", err)

	var (
		webhookParser  webhookcontrollers.StripeEventParser
		webhookHandler webhookcontrollers.StripeEventHandler
	)
	if gateway != nil {
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Checkout: checkoutService,
			Gateway:  gateway,
			Logger:   logg,
			Metrics:  checkoutMetrics,
		})
		proc.Must(ctx, "failed to create stripe webhook service", err)
		webhookHandler = webhookService
		webhookParser = stripewebhook.NewVerifier(stripeClient.SigningSecret(), logg)
	}

	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, stripewebhook.DefaultGuardTTL, "stripe-webhook")
	proc.Must(ctx, "failed to create stripe webhook guard", err)

	if cfg.Outbox.EmbeddedDrain {
		drainer, err := orders.NewDrainer(orders.DrainerParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Airtable: airtableClient,
			Metrics:  metrics.NewSinkMetrics(registry),
		})
		proc.Must(ctx, "failed to create embedded order drainer", err)
		go func() {
			if err := drainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "embedded order drainer stopped", err)
			}
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			checkoutService,
			cartService,
			webhookParser,
			webhookHandler,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			proc.Must(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shutting down gracefully")
	}
}
