package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// StripeGateway calls the Stripe PaymentIntents API.
type StripeGateway struct {
	intents *paymentintent.Client
}

func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil || client.PaymentIntents() == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{intents: client.PaymentIntents()}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(input.Amount),
		Currency: stripe.String(NormalizeCurrency(input.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if email := strings.TrimSpace(input.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	params.Shipping = shippingParams(input.Shipping)
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, gatewayError(err, "create payment intent")
	}
	return FromStripe(pi), nil
}

func (g *StripeGateway) UpdateIntent(ctx context.Context, id string, input UpdateIntentInput) (*Intent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if input.Amount > 0 {
		params.Amount = stripe.Int64(input.Amount)
	}
	params.Shipping = shippingParams(input.Shipping)
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.Update(id, params)
	if err != nil {
		return nil, gatewayError(err, "update payment intent")
	}
	return FromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(id, params)
	if err != nil {
		return nil, gatewayError(err, "retrieve payment intent")
	}
	return FromStripe(pi), nil
}

// FromStripe maps the SDK type to Intent.
func FromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	intent := &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		Email:          pi.ReceiptEmail,
		Metadata:       pi.Metadata,
	}
	if pi.Shipping != nil && pi.Shipping.Address != nil {
		intent.Shipping = &ShippingAddress{
			Name:       pi.Shipping.Name,
			Phone:      pi.Shipping.Phone,
			Line1:      pi.Shipping.Address.Line1,
			City:       pi.Shipping.Address.City,
			State:      pi.Shipping.Address.State,
			PostalCode: pi.Shipping.Address.PostalCode,
		}
	}
	if pi.Created > 0 {
		intent.CreatedAt = time.Unix(pi.Created, 0).UTC()
	}
	if intent.Metadata == nil {
		intent.Metadata = map[string]string{}
	}
	return intent
}

func shippingParams(addr *ShippingAddress) *stripe.ShippingDetailsParams {
	if addr == nil {
		return nil
	}
	params := &stripe.ShippingDetailsParams{
		Name: stripe.String(addr.Name),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(addr.Line1),
			City:       stripe.String(addr.City),
			State:      stripe.String(addr.State),
			PostalCode: stripe.String(addr.PostalCode),
			Country:    stripe.String("US"),
		},
	}
	if addr.Phone != "" {
		params.Phone = stripe.String(addr.Phone)
	}
	return params
}

func gatewayError(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details := map[string]any{
			"type": string(stripeErr.Type),
		}
		if stripeErr.Code != "" {
			details["code"] = string(stripeErr.Code)
		}
		if stripeErr.HTTPStatusCode == 404 {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
}
