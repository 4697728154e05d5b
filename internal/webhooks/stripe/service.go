package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type cardCompleter interface {
	CompleteCardPayment(ctx context.Context, intent *payments.Intent, source orders.Source) (*checkout.Completion, error)
}

type intentReader interface {
	RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error)
}

type ServiceParams struct {
	Checkout cardCompleter
	Gateway  intentReader
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
}

// Service reconciles payment events with orders.
type Service struct {
	checkout cardCompleter
	gateway  intentReader
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, errors.New("checkout service required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{
		checkout: params.Checkout,
		gateway:  params.Gateway,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// HandleEvent routes one verified event. Unhandled types are acknowledged
// without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	var err error
	result := "ignored"
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		result, err = s.intentSucceeded(ctx, event)
	case stripe.EventTypeChargeSucceeded:
		result, err = s.chargeSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		result = "logged"
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": event.GetObjectValue("id"),
			"failure_message":   event.GetObjectValue("last_payment_error", "message"),
		}), "payment failed")
	default:
		s.logg.Debug(ctx, "stripe event acknowledged")
	}
	if err != nil {
		result = "error"
	}
	s.metrics.IncWebhookEvent(string(event.Type), result)
	return err
}

func (s *Service) intentSucceeded(ctx context.Context, event *stripe.Event) (string, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	return s.complete(ctx, payments.FromStripe(&pi))
}

// chargeSucceeded re-reads the parent intent, since a charge carries neither
// the checkout metadata nor the shipping address.
func (s *Service) chargeSucceeded(ctx context.Context, event *stripe.Event) (string, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		s.logg.Warn(s.logg.WithField(ctx, "charge_id", charge.ID), "charge has no payment intent, skipping")
		return "skipped", nil
	}
	intent, err := s.gateway.RetrieveIntent(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return "", err
	}
	if !intent.Succeeded() {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": intent.ID,
			"status":            intent.Status,
		}), "parent intent not succeeded yet, skipping")
		return "skipped", nil
	}
	return s.complete(ctx, intent)
}

func (s *Service) complete(ctx context.Context, intent *payments.Intent) (string, error) {
	done, err := s.checkout.CompleteCardPayment(ctx, intent, orders.SourceWebhook)
	if err != nil {
		return "", err
	}
	if done.Duplicate {
		return "duplicate", nil
	}
	return "materialized", nil
}
