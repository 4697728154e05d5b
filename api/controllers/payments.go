package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// createIntentRequest tolerates the amount, cart and customer fields the
// storefront has always sent. None of them is trusted: the intent is priced
// from the live cart and the customer comes from the checkout session.
type createIntentRequest struct {
	Amount         json.RawMessage `json:"amount,omitempty"`
	CartItems      json.RawMessage `json:"cartItems,omitempty"`
	FirstName      json.RawMessage `json:"firstName,omitempty"`
	LastName       json.RawMessage `json:"lastName,omitempty"`
	Email          json.RawMessage `json:"email,omitempty"`
	Phone          json.RawMessage `json:"phone,omitempty"`
	Address        json.RawMessage `json:"address,omitempty"`
	City           json.RawMessage `json:"city,omitempty"`
	State          json.RawMessage `json:"state,omitempty"`
	ZipCode        json.RawMessage `json:"zipCode,omitempty"`
	Zip            json.RawMessage `json:"zip,omitempty"`
	ShippingMethod json.RawMessage `json:"shippingMethod,omitempty"`
	Currency       json.RawMessage `json:"currency,omitempty"`
}

type createIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	ItemCount    int    `json:"itemCount"`
}

type recordSuccessRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required,max=255"`
}

// CreatePaymentIntent prepares a card payment for the session's checkout.
func CreatePaymentIntent(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createIntentRequest
		if err := validators.DecodeJSON(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		selection, err := svc.CreatePaymentIntent(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, createIntentResponse{
			ClientSecret: selection.ClientSecret,
			Amount:       selection.Amount,
			ItemCount:    selection.ItemCount,
		})
	}
}

// RecordPaymentSuccess reconciles a card payment the client reports as done.
func RecordPaymentSuccess(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload recordSuccessRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		done, err := svc.RecordPaymentSuccess(r.Context(), sid, payload.PaymentIntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, done)
	}
}
