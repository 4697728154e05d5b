package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CheckoutService is the checkout state machine as seen by the HTTP layer.
type CheckoutService interface {
	Initialize(ctx context.Context, sessionID string) (*sessions.CheckoutSession, error)
	SubmitPersonalInfo(ctx context.Context, sessionID string, input checkout.PersonalInfoInput) (*checkout.StepResult, error)
	SubmitShippingInfo(ctx context.Context, sessionID string, input checkout.ShippingInfoInput) (*checkout.StepResult, error)
	SelectPaymentMethod(ctx context.Context, sessionID, method string) (*checkout.PaymentSelection, error)
	CreatePaymentIntent(ctx context.Context, sessionID string) (*checkout.PaymentSelection, error)
	ConfirmNonCardPayment(ctx context.Context, sessionID string, input checkout.ManualConfirmation) (*checkout.Completion, error)
	RecordPaymentSuccess(ctx context.Context, sessionID, paymentIntentID string) (*checkout.Completion, error)
	Abandon(ctx context.Context, sessionID string) (*sessions.CheckoutSession, error)
	Status(ctx context.Context, sessionID string) (*checkout.StatusView, error)
}

type initializeResponse struct {
	CheckoutID string             `json:"checkoutId"`
	Step       enums.CheckoutStep `json:"step"`
}

type stepResponse struct {
	Success   bool               `json:"success"`
	NextStep  enums.CheckoutStep `json:"nextStep"`
	CartTotal *json.Number       `json:"cartTotal,omitempty"`
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

type paymentMethodResponse struct {
	PaymentMethod enums.PaymentMethod    `json:"paymentMethod"`
	ClientSecret  string                 `json:"clientSecret,omitempty"`
	Amount        int64                  `json:"amount"`
	Instructions  *checkout.Instructions `json:"instructions,omitempty"`
	NextStep      enums.CheckoutStep     `json:"nextStep"`
}

type abandonResponse struct {
	CheckoutID string             `json:"checkoutId,omitempty"`
	Step       enums.CheckoutStep `json:"step"`
}

// sessionID reads the shopper session set by the session middleware.
func sessionID(r *http.Request) (string, error) {
	sid := middleware.SessionIDFromContext(r.Context())
	if sid == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	return sid, nil
}

func money(v decimal.Decimal) *json.Number {
	n := json.Number(v.StringFixed(2))
	return &n
}

// CheckoutInitialize starts (or returns) the session's checkout.
func CheckoutInitialize(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Initialize(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, initializeResponse{CheckoutID: session.CheckoutID, Step: session.Step})
	}
}

// CheckoutPersonalInfo stores the contact step.
func CheckoutPersonalInfo(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkout.PersonalInfoInput
		if err := validators.DecodeJSON(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SubmitPersonalInfo(r.Context(), sid, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stepResponse{Success: true, NextStep: result.NextStep})
	}
}

// CheckoutShippingInfo stores the delivery step and reports the cart total.
// Payload validation happens in the service, after the step precondition.
func CheckoutShippingInfo(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkout.ShippingInfoInput
		if err := validators.DecodeJSON(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SubmitShippingInfo(r.Context(), sid, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := stepResponse{Success: true, NextStep: result.NextStep}
		if result.CartTotal != nil {
			resp.CartTotal = money(*result.CartTotal)
		}
		responses.WriteSuccess(w, resp)
	}
}

// CheckoutPaymentMethod selects card or a manual method.
func CheckoutPaymentMethod(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		selection, err := svc.SelectPaymentMethod(r.Context(), sid, payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentMethodResponse{
			PaymentMethod: selection.Method,
			ClientSecret:  selection.ClientSecret,
			Amount:        selection.Amount,
			Instructions:  selection.Instructions,
			NextStep:      selection.NextStep,
		})
	}
}

// CheckoutConfirmManual materializes the order for a manual payment.
func CheckoutConfirmManual(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkout.ManualConfirmation
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		done, err := svc.ConfirmNonCardPayment(r.Context(), sid, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, done)
	}
}

func CheckoutAbandon(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Abandon(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := abandonResponse{Step: enums.CheckoutStepAbandoned}
		if session != nil {
			resp.CheckoutID = session.CheckoutID
			resp.Step = session.Step
		}
		responses.WriteSuccess(w, resp)
	}
}

func CheckoutStatus(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Status(r.Context(), sid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
