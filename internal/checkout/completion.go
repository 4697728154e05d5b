package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/validation"
)

// Completion statuses reported to the storefront.
const (
	StatusCompleted  = "completed"
	StatusProcessing = "processing"
)

// Completion reports the order produced for a payment.
type Completion struct {
	OrderID   string `json:"orderId,omitempty"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// ManualConfirmation is the shopper's claim that a manual payment was sent.
type ManualConfirmation struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	Reference     string `json:"reference,omitempty" validate:"omitempty,max=120"`
}

// ConfirmNonCardPayment materializes the order for a manual payment method
// without involving the gateway. The order is keyed by checkout so repeated
// confirmations return the same order id.
func (s *Service) ConfirmNonCardPayment(ctx context.Context, sessionID string, input ManualConfirmation) (*Completion, error) {
	if err := validation.Struct(&input); err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil || !method.IsManual() || !s.offers(method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "manual payment method required").
			WithDetails(map[string]any{"paymentMethod": input.PaymentMethod})
	}
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Step == enums.CheckoutStepCompleted && current.OrderID != "" {
		return &Completion{OrderID: current.OrderID, Status: StatusCompleted, Duplicate: true}, nil
	}
	if err := paymentReady(current); err != nil {
		return nil, err
	}

	summary, total, err := s.cartTotal(ctx, sessionID, current.ShippingInfo.ShippingMethod)
	if err != nil {
		return nil, err
	}
	if summary.ItemCount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	reference := strings.TrimSpace(input.Reference)
	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), current.CheckoutID)
	result, err := s.orders.Materialize(ctx, orders.OrderInput{
		PaymentReference: fmt.Sprintf("%s:%s", method, current.CheckoutID),
		PaymentMethod:    method,
		Amount:           total,
		Currency:         s.currency,
		SessionID:        sessionID,
		CheckoutID:       current.CheckoutID,
		Customer:         customerFromSession(current),
		ShippingAddress:  current.ShippingInfo.SingleLine(),
		ShippingMethod:   current.ShippingInfo.ShippingMethod,
		Items:            summaryItems(summary),
		Source:           orders.SourceManual,
	})
	if err != nil {
		return nil, err
	}
	if reference != "" {
		s.logg.Info(s.logg.WithField(ctx, "external_reference", reference), "manual payment reference recorded")
	}

	s.finish(ctx, sessionID, current.CheckoutID, result.OrderID, func(next *sessions.CheckoutSession) {
		next.PaymentMethod = &method
		next.PaymentReference = reference
	})
	return &Completion{OrderID: result.OrderID, Status: StatusCompleted, Duplicate: result.Duplicate}, nil
}

// MarkPaymentProcessing moves a checkout whose card payment was submitted
// into payment_processing. Sessions in any other state are left alone.
func (s *Service) MarkPaymentProcessing(ctx context.Context, sessionID, paymentIntentID string) error {
	changed := false
	_, err := s.sessions.Update(ctx, sessionID, func(current *sessions.CheckoutSession) (*sessions.CheckoutSession, error) {
		changed = false
		if current == nil || current.Step != enums.CheckoutStepPaymentSelection {
			return nil, sessions.ErrNoChange
		}
		if current.PaymentIntentID != "" && current.PaymentIntentID != paymentIntentID {
			return nil, sessions.ErrNoChange
		}
		current.Step = enums.CheckoutStepPaymentProcessing
		current.PaymentIntentID = paymentIntentID
		changed = true
		return current, nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment processing")
	}
	if changed {
		s.metrics.IncStep(string(enums.CheckoutStepPaymentProcessing))
	}
	return nil
}

// Complete records orderID on the session's checkout and marks it completed.
// A session that has since moved to another checkout is not touched.
func (s *Service) Complete(ctx context.Context, sessionID, checkoutID, orderID string) error {
	_, _, err := s.complete(ctx, sessionID, checkoutID, orderID, nil)
	return err
}

func (s *Service) complete(ctx context.Context, sessionID, checkoutID, orderID string, mutate func(*sessions.CheckoutSession)) (*sessions.CheckoutSession, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}
	changed := false
	updated, err := s.sessions.Update(ctx, sessionID, func(current *sessions.CheckoutSession) (*sessions.CheckoutSession, error) {
		changed = false
		if !current.HasCheckout() {
			return nil, sessions.ErrNoChange
		}
		if checkoutID != "" && current.CheckoutID != checkoutID {
			return nil, sessions.ErrNoChange
		}
		if current.Step == enums.CheckoutStepCompleted && current.OrderID == orderID {
			return nil, sessions.ErrNoChange
		}
		current.Step = enums.CheckoutStepCompleted
		current.OrderID = orderID
		if mutate != nil {
			mutate(current)
		}
		changed = true
		return current, nil
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout")
	}
	return updated, changed, nil
}

// finish completes the session after an order exists. The order is already
// durable, so failures here are logged rather than returned.
func (s *Service) finish(ctx context.Context, sessionID, checkoutID, orderID string, mutate func(*sessions.CheckoutSession)) {
	updated, changed, err := s.complete(ctx, sessionID, checkoutID, orderID, mutate)
	if err != nil {
		s.logg.Error(ctx, "checkout completion not recorded", err)
		return
	}
	if !changed {
		return
	}
	s.metrics.IncStep(string(enums.CheckoutStepCompleted))
	s.logg.Info(s.logg.WithField(ctx, "order_id", orderID), "checkout completed")
	s.trackProgress(ctx, updated, nil)
}

// CompleteCardPayment materializes the order for a succeeded intent. The
// customer, shipping and item details come from the intent, with the stored
// session filling any gaps.
func (s *Service) CompleteCardPayment(ctx context.Context, intent *payments.Intent, source orders.Source) (*Completion, error) {
	if intent == nil || intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	if !intent.Succeeded() {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment has not succeeded").
			WithDetails(map[string]any{"status": intent.Status})
	}

	meta := intent.Metadata
	sessionID := meta[MetaSessionID]
	checkoutID := meta[MetaCheckoutID]
	ctx = s.logg.WithPaymentIntentID(s.logg.WithSessionID(ctx, sessionID), intent.ID)

	var session *sessions.CheckoutSession
	if sessionID != "" {
		loaded, err := s.load(ctx, sessionID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "checkout session unavailable, using payment metadata only")
		} else if loaded.HasCheckout() && (checkoutID == "" || loaded.CheckoutID == checkoutID) {
			session = loaded
		}
	}
	if checkoutID == "" && session != nil {
		checkoutID = session.CheckoutID
	}

	input := orders.OrderInput{
		PaymentReference: intent.ID,
		PaymentMethod:    enums.PaymentMethodCard,
		Amount:           intent.PaidAmount(),
		Currency:         intent.Currency,
		SessionID:        sessionID,
		CheckoutID:       checkoutID,
		Customer: orders.Customer{
			Name:  meta[MetaCustomerName],
			Email: firstNonEmpty(meta[MetaEmail], intent.Email),
			Phone: meta[MetaPhone],
		},
		ShippingAddress: intent.Shipping.SingleLine(),
		ShippingMethod:  meta[MetaShippingMethod],
		Source:          source,
	}
	if session != nil {
		fromSession := customerFromSession(session)
		input.Customer.Name = firstNonEmpty(input.Customer.Name, fromSession.Name)
		input.Customer.Email = firstNonEmpty(input.Customer.Email, fromSession.Email)
		input.Customer.Phone = firstNonEmpty(input.Customer.Phone, fromSession.Phone)
		if session.ShippingInfo != nil {
			input.ShippingAddress = firstNonEmpty(input.ShippingAddress, session.ShippingInfo.SingleLine())
			input.ShippingMethod = firstNonEmpty(input.ShippingMethod, session.ShippingInfo.ShippingMethod)
		}
	}
	if raw := meta[MetaOrderSummary]; raw != "" {
		items, err := orders.DecodeSummary(raw)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order summary unreadable, recording a single line")
		} else {
			input.Items = items
		}
	}

	result, err := s.orders.Materialize(ctx, input)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, sessionID, checkoutID, result.OrderID, func(next *sessions.CheckoutSession) {
		next.PaymentIntentID = intent.ID
	})
	return &Completion{OrderID: result.OrderID, Status: StatusCompleted, Duplicate: result.Duplicate}, nil
}

// RecordPaymentSuccess is the client's report that a card payment went
// through. The intent is re-read from the gateway and only a succeeded one
// produces an order; a still-processing one moves the checkout to
// payment_processing.
func (s *Service) RecordPaymentSuccess(ctx context.Context, sessionID, paymentIntentID string) (*Completion, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paymentIntentId is required")
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured")
	}
	intent, err := s.gateway.RetrieveIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if owner := intent.Metadata[MetaSessionID]; owner != "" && owner != sessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}

	switch intent.Status {
	case payments.StatusSucceeded:
		return s.CompleteCardPayment(ctx, intent, orders.SourceClient)
	case payments.StatusProcessing:
		if err := s.MarkPaymentProcessing(ctx, sessionID, intent.ID); err != nil {
			return nil, err
		}
		return &Completion{Status: StatusProcessing}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment has not succeeded").
		WithDetails(map[string]any{"status": intent.Status})
}

func customerFromSession(session *sessions.CheckoutSession) orders.Customer {
	if session == nil || session.PersonalInfo == nil {
		return orders.Customer{}
	}
	return orders.Customer{
		Name:  session.PersonalInfo.FullName(),
		Email: session.PersonalInfo.Email,
		Phone: session.PersonalInfo.Phone,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
