package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// maxStripePayload matches the size Stripe documents for event bodies.
const maxStripePayload = 65536

type StripeEventParser interface {
	Parse(ctx context.Context, payload []byte, signature string) (*stripe.Event, error)
}

type StripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeEventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type ack struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies and dispatches Stripe events. Only an unreadable or
// unverifiable request is rejected; once verified, the event is always
// acknowledged so Stripe stops retrying, and failures are left in the logs.
func StripeWebhook(parser StripeEventParser, svc StripeEventHandler, guard StripeEventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if parser == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStripePayload))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := parser.Parse(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
		}

		claimed := false
		if guard != nil && event.ID != "" {
			first, err := guard.Claim(ctx, event.ID)
			switch {
			case err != nil:
				// the order dedup still protects a replay
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe event guard unavailable, processing anyway")
				}
			case !first:
				if logg != nil {
					logg.Info(ctx, "stripe event already processed")
				}
				responses.WriteRaw(w, http.StatusOK, ack{Received: true})
				return
			default:
				claimed = true
			}
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if logg != nil {
				logg.Error(ctx, "stripe event processing failed", err)
			}
			// Stripe does not resend an acknowledged event. Dropping the claim
			// only lets a dashboard resend or a replay of the same event id run
			// again; the client success report still covers the payment.
			if claimed {
				if relErr := guard.Release(ctx, event.ID); relErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "release stripe event guard")
				}
			}
		}

		responses.WriteRaw(w, http.StatusOK, ack{Received: true})
	}
}
