package checkout

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Payment intent metadata keys.
const (
	MetaSessionID      = "session_id"
	MetaCheckoutID     = "checkout_id"
	MetaCustomerName   = "customer_name"
	MetaEmail          = "email"
	MetaPhone          = "phone"
	MetaShippingMethod = "shipping_method"
	MetaItemCount      = "item_count"
	MetaOrderSummary   = "order_summary"
)

// PaymentSelection is the outcome of choosing a payment method. Card
// selections carry the intent's client secret and amount in minor units;
// manual selections carry instructions.
type PaymentSelection struct {
	Session      *sessions.CheckoutSession
	Method       enums.PaymentMethod
	ClientSecret string
	Amount       int64
	ItemCount    int
	Instructions *Instructions
	NextStep     enums.CheckoutStep
}

// SelectPaymentMethod prices the live cart and prepares the chosen payment.
func (s *Service) SelectPaymentMethod(ctx context.Context, sessionID, rawMethod string) (*PaymentSelection, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := paymentReady(current); err != nil {
		return nil, err
	}

	method, err := enums.ParsePaymentMethod(rawMethod)
	if err != nil || !s.offers(method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"paymentMethod": rawMethod, "allowed": s.availableMethods()})
	}

	summary, total, err := s.cartTotal(ctx, sessionID, current.ShippingInfo.ShippingMethod)
	if err != nil {
		return nil, err
	}
	if summary.ItemCount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), current.CheckoutID)
	next := current.Clone()
	next.PaymentMethod = &method
	next.Step = enums.CheckoutStepPaymentSelection
	selection := &PaymentSelection{
		Method:    method,
		ItemCount: summary.ItemCount,
		NextStep:  enums.CheckoutStepPaymentProcessing,
	}

	if method == enums.PaymentMethodCard {
		intent, err := s.ensureIntent(ctx, current, summary, total)
		if err != nil {
			return nil, err
		}
		next.PaymentIntentID = intent.ID
		selection.ClientSecret = intent.ClientSecret
		selection.Amount = intent.Amount
	} else {
		inst := s.manual.instructions(method, total, s.currency, current.CheckoutID)
		selection.Instructions = &inst
		selection.Amount = payments.ToMinorUnits(total)
		selection.NextStep = enums.CheckoutStepCompleted
	}

	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, err
	}
	selection.Session = saved
	s.trackProgress(ctx, saved, &total)
	return selection, nil
}

// CreatePaymentIntent is the card shortcut used by the payment form.
func (s *Service) CreatePaymentIntent(ctx context.Context, sessionID string) (*PaymentSelection, error) {
	return s.SelectPaymentMethod(ctx, sessionID, string(enums.PaymentMethodCard))
}

func paymentReady(current *sessions.CheckoutSession) error {
	if err := editable(current); err != nil {
		return err
	}
	if !current.HasCheckout() || current.Step.IsTerminal() || current.PersonalInfo == nil {
		return pkgerrors.New(pkgerrors.CodePrecondition, "personal info required before payment")
	}
	if current.ShippingInfo == nil {
		return pkgerrors.New(pkgerrors.CodePrecondition, "shipping info required before payment")
	}
	return nil
}

func (s *Service) offers(method enums.PaymentMethod) bool {
	for _, m := range s.availableMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// ensureIntent reuses the session's unconfirmed intent, resized to total, or
// creates a new one.
func (s *Service) ensureIntent(ctx context.Context, current *sessions.CheckoutSession, summary *cart.Summary, total decimal.Decimal) (*payments.Intent, error) {
	amount := payments.ToMinorUnits(total)
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart total must be positive")
	}
	metadata := intentMetadata(current, summary)
	shipping := intentShipping(current)

	if current.PaymentIntentID != "" {
		existing, err := s.gateway.RetrieveIntent(ctx, current.PaymentIntentID)
		switch {
		case err == nil && existing.Updatable():
			updated, err := s.gateway.UpdateIntent(ctx, existing.ID, payments.UpdateIntentInput{
				Amount:   amount,
				Metadata: metadata,
				Shipping: shipping,
			})
			if err != nil {
				s.metrics.IncPaymentIntent("update", "error")
				return nil, err
			}
			s.metrics.IncPaymentIntent("update", "ok")
			return updated, nil
		case err == nil && existing.Succeeded():
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment already captured for this checkout")
		case err == nil && existing.Status == payments.StatusProcessing:
			return nil, errProcessing
		case err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			return nil, err
		}
		s.logg.Warn(s.logg.WithPaymentIntentID(ctx, current.PaymentIntentID), "stored payment intent not reusable, creating a new one")
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentInput{
		Amount:         amount,
		Currency:       s.currency,
		Email:          personalEmail(current),
		Description:    fmt.Sprintf("Checkout %s", current.CheckoutID),
		Metadata:       metadata,
		Shipping:       shipping,
		IdempotencyKey: fmt.Sprintf("checkout-%s-v%d-%d", current.CheckoutID, current.Version, amount),
	})
	if err != nil {
		s.metrics.IncPaymentIntent("create", "error")
		return nil, err
	}
	s.metrics.IncPaymentIntent("create", "ok")
	s.logg.Info(s.logg.WithPaymentIntentID(ctx, intent.ID), "payment intent created")
	return intent, nil
}

func personalEmail(session *sessions.CheckoutSession) string {
	if session.PersonalInfo == nil {
		return ""
	}
	return session.PersonalInfo.Email
}

func intentMetadata(session *sessions.CheckoutSession, summary *cart.Summary) map[string]string {
	meta := map[string]string{
		MetaSessionID:  session.SessionID,
		MetaCheckoutID: session.CheckoutID,
		MetaItemCount:  strconv.Itoa(summary.ItemCount),
	}
	if info := session.PersonalInfo; info != nil {
		meta[MetaCustomerName] = truncate(info.FullName(), orders.MetadataValueLimit)
		meta[MetaEmail] = info.Email
		meta[MetaPhone] = info.Phone
	}
	if session.ShippingInfo != nil {
		meta[MetaShippingMethod] = session.ShippingInfo.ShippingMethod
	}
	if encoded := orders.EncodeSummary(summaryItems(summary), orders.MetadataValueLimit); encoded != "" {
		meta[MetaOrderSummary] = encoded
	}
	return meta
}

func intentShipping(session *sessions.CheckoutSession) *payments.ShippingAddress {
	info := session.ShippingInfo
	if info == nil {
		return nil
	}
	addr := &payments.ShippingAddress{
		Line1:      info.Address,
		City:       info.City,
		State:      info.State,
		PostalCode: info.Zip,
	}
	if session.PersonalInfo != nil {
		addr.Name = session.PersonalInfo.FullName()
		addr.Phone = session.PersonalInfo.Phone
	}
	return addr
}

// summaryItems converts cart lines to the compact order summary.
func summaryItems(summary *cart.Summary) []orders.SummaryItem {
	items := make([]orders.SummaryItem, 0, len(summary.Items))
	for _, line := range summary.Items {
		item := orders.SummaryItem{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice.StringFixed(2),
		}
		if line.SelectedWeight != nil {
			item.Weight = *line.SelectedWeight
		}
		items = append(items, item)
	}
	return items
}

// truncate caps v at limit bytes without splitting a UTF-8 sequence.
func truncate(v string, limit int) string {
	if len(v) <= limit {
		return v
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut]
}
