package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Verifier turns a raw webhook request into a Stripe event.
type Verifier struct {
	secret string
	logg   *logger.Logger
}

func NewVerifier(secret string, logg *logger.Logger) *Verifier {
	return &Verifier{secret: secret, logg: logg}
}

// Parse checks the Stripe-Signature header against the signing secret. With
// no secret configured the payload is accepted unverified.
func (v *Verifier) Parse(ctx context.Context, payload []byte, signature string) (*stripe.Event, error) {
	if v.secret == "" {
		if v.logg != nil {
			v.logg.Warn(ctx, "stripe webhook signing secret not configured, accepting unverified event")
		}
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
		}
		return &event, nil
	}
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify stripe signature")
	}
	return &event, nil
}
