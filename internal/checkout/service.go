package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/internal/tracking"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/validation"
)

type cartReader interface {
	Summary(ctx context.Context, sessionID string) (*cart.Summary, error)
}

type orderMaterializer interface {
	Materialize(ctx context.Context, in orders.OrderInput) (*orders.Result, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Sessions sessions.Store
	Cart     cartReader
	Gateway  payments.Gateway
	Orders   orderMaterializer
	Tracker  tracking.Tracker
	Shipping ShippingRates
	Manual   ManualPayments
	Currency string
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
	Now      func() time.Time
}

// Service drives a session's checkout through its steps. Every transition
// reads the stored session, does its side effects, then saves the next state
// only if nobody else wrote in between.
type Service struct {
	sessions sessions.Store
	cart     cartReader
	gateway  payments.Gateway
	orders   orderMaterializer
	tracker  tracking.Tracker
	shipping ShippingRates
	manual   ManualPayments
	currency string
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if params.Cart == nil {
		return nil, errors.New("cart reader required")
	}
	if params.Orders == nil {
		return nil, errors.New("order materializer required")
	}
	if len(params.Shipping) == 0 {
		return nil, errors.New("shipping rates required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	tracker := params.Tracker
	if tracker == nil {
		tracker = tracking.Noop{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions: params.Sessions,
		cart:     params.Cart,
		gateway:  params.Gateway,
		orders:   params.Orders,
		tracker:  tracker,
		shipping: params.Shipping,
		manual:   params.Manual,
		currency: payments.NormalizeCurrency(params.Currency),
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

var (
	errConcurrent = pkgerrors.New(pkgerrors.CodePrecondition, "checkout changed concurrently, retry")
	errCompleted  = pkgerrors.New(pkgerrors.CodePrecondition, "checkout already completed")
	errProcessing = pkgerrors.New(pkgerrors.CodePrecondition, "payment is already processing")
)

// load returns the stored session or nil when the shopper has none yet.
func (s *Service) load(ctx context.Context, sessionID string) (*sessions.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	current, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return current, nil
}

// save writes next if the stored version still equals next.Version.
func (s *Service) save(ctx context.Context, next *sessions.CheckoutSession) (*sessions.CheckoutSession, error) {
	saved, err := s.sessions.Save(ctx, next)
	if errors.Is(err, sessions.ErrVersionMismatch) {
		return nil, errConcurrent
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	s.metrics.IncStep(string(saved.Step))
	return saved, nil
}

// fresh starts a new checkout on top of current, keeping its version so the
// save still detects concurrent writers.
func (s *Service) fresh(sessionID string, current *sessions.CheckoutSession) *sessions.CheckoutSession {
	next := &sessions.CheckoutSession{
		SessionID:  sessionID,
		CheckoutID: uuid.NewString(),
		Step:       enums.CheckoutStepStarted,
	}
	if current != nil {
		next.Version = current.Version
	}
	return next
}

// editable rejects changes to a checkout whose payment is underway or done.
func editable(current *sessions.CheckoutSession) error {
	if current == nil {
		return nil
	}
	switch current.Step {
	case enums.CheckoutStepCompleted:
		return errCompleted
	case enums.CheckoutStepPaymentProcessing:
		return errProcessing
	}
	return nil
}

// Initialize starts a checkout for the session, or returns the one in
// progress. A finished or abandoned checkout is replaced by a new one.
func (s *Service) Initialize(ctx context.Context, sessionID string) (*sessions.CheckoutSession, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current.HasCheckout() && !current.Step.IsTerminal() {
		return current, nil
	}

	saved, err := s.save(ctx, s.fresh(sessionID, current))
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), saved.CheckoutID)
	s.logg.Info(ctx, "checkout started")
	return s.startTracking(ctx, saved), nil
}

func (s *Service) startTracking(ctx context.Context, session *sessions.CheckoutSession) *sessions.CheckoutSession {
	recordID, err := s.tracker.Started(ctx, tracking.Snapshot{Session: session})
	if err != nil {
		s.logg.Error(ctx, "checkout tracking record not created", err)
		return session
	}
	if recordID == "" {
		return session
	}
	checkoutID := session.CheckoutID
	updated, err := s.sessions.Update(ctx, session.SessionID, func(current *sessions.CheckoutSession) (*sessions.CheckoutSession, error) {
		if current == nil || current.CheckoutID != checkoutID || current.TrackingRecordID != "" {
			return nil, sessions.ErrNoChange
		}
		current.TrackingRecordID = recordID
		return current, nil
	})
	if err != nil || updated == nil {
		if err != nil {
			s.logg.Error(ctx, "checkout tracking record not linked", err)
		}
		return session
	}
	return updated
}

func (s *Service) trackProgress(ctx context.Context, session *sessions.CheckoutSession, total *decimal.Decimal) {
	if err := s.tracker.Progress(ctx, tracking.Snapshot{Session: session, CartTotal: total}); err != nil {
		s.logg.Error(ctx, "checkout tracking update failed", err)
	}
}

// StepResult is returned by the information steps.
type StepResult struct {
	Session   *sessions.CheckoutSession
	NextStep  enums.CheckoutStep
	CartTotal *decimal.Decimal
}

// PersonalInfoInput is the first checkout form.
type PersonalInfoInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

func (in PersonalInfoInput) normalized() PersonalInfoInput {
	return PersonalInfoInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
	}
}

// SubmitPersonalInfo stores the contact block, starting a checkout when the
// session has none.
func (s *Service) SubmitPersonalInfo(ctx context.Context, sessionID string, input PersonalInfoInput) (*StepResult, error) {
	input = input.normalized()
	if err := validation.Struct(&input); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Step == enums.CheckoutStepPaymentProcessing {
		return nil, errProcessing
	}

	startNew := !current.HasCheckout() || current.Step.IsTerminal()
	next := current.Clone()
	if startNew {
		next = s.fresh(sessionID, current)
	}
	next.PersonalInfo = &sessions.PersonalInfo{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
	}
	next.Step = enums.CheckoutStepPersonalInfo

	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), saved.CheckoutID)
	if startNew {
		saved = s.startTracking(ctx, saved)
	}
	s.trackProgress(ctx, saved, nil)
	return &StepResult{Session: saved, NextStep: enums.CheckoutStepShippingInfo}, nil
}

// ShippingInfoInput is the delivery form. The zip code travels as zipCode.
type ShippingInfoInput struct {
	Address        string `json:"address" validate:"required,max=200"`
	City           string `json:"city" validate:"required,max=100"`
	State          string `json:"state" validate:"required,max=50"`
	ZipCode        string `json:"zipCode" validate:"required,max=20"`
	ShippingMethod string `json:"shippingMethod" validate:"required"`
}

func (in ShippingInfoInput) normalized() ShippingInfoInput {
	return ShippingInfoInput{
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		State:          strings.TrimSpace(in.State),
		ZipCode:        strings.TrimSpace(in.ZipCode),
		ShippingMethod: normalizeMethod(in.ShippingMethod),
	}
}

// SubmitShippingInfo stores the delivery block and returns the live cart
// total including shipping.
func (s *Service) SubmitShippingInfo(ctx context.Context, sessionID string, input ShippingInfoInput) (*StepResult, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := editable(current); err != nil {
		return nil, err
	}
	if !current.HasCheckout() || current.Step.IsTerminal() || current.PersonalInfo == nil {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "personal info required before shipping info")
	}

	input = input.normalized()
	if err := validation.Struct(&input); err != nil {
		return nil, err
	}
	if _, ok := s.shipping.Cost(input.ShippingMethod); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method").
			WithDetails(map[string]any{"shippingMethod": input.ShippingMethod, "allowed": s.shipping.Methods()})
	}

	next := current.Clone()
	next.ShippingInfo = &sessions.ShippingInfo{
		Address:        input.Address,
		City:           input.City,
		State:          input.State,
		Zip:            input.ZipCode,
		ShippingMethod: input.ShippingMethod,
	}
	next.Step = enums.CheckoutStepShippingInfo

	_, total, err := s.cartTotal(ctx, sessionID, input.ShippingMethod)
	if err != nil {
		return nil, err
	}
	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), saved.CheckoutID)
	s.trackProgress(ctx, saved, &total)
	return &StepResult{Session: saved, NextStep: enums.CheckoutStepPaymentSelection, CartTotal: &total}, nil
}

// cartTotal reads the live cart and adds the shipping cost of method.
func (s *Service) cartTotal(ctx context.Context, sessionID, method string) (*cart.Summary, decimal.Decimal, error) {
	summary, err := s.cart.Summary(ctx, sessionID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := summary.Subtotal
	if cost, ok := s.shipping.Cost(method); ok {
		total = total.Add(cost)
	}
	return summary, total.Round(2), nil
}

// Abandon marks a checkout in progress as given up.
func (s *Service) Abandon(ctx context.Context, sessionID string) (*sessions.CheckoutSession, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !current.HasCheckout() {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "no checkout in progress")
	}
	switch current.Step {
	case enums.CheckoutStepAbandoned:
		return current, nil
	case enums.CheckoutStepCompleted:
		return nil, errCompleted
	}

	next := current.Clone()
	next.Step = enums.CheckoutStepAbandoned
	saved, err := s.save(ctx, next)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCheckoutID(s.logg.WithSessionID(ctx, sessionID), saved.CheckoutID)
	s.logg.Info(ctx, "checkout abandoned")
	s.trackProgress(ctx, saved, nil)
	return saved, nil
}

// StatusView is what the storefront needs to resume a checkout.
type StatusView struct {
	Session        *sessions.CheckoutSession `json:"session,omitempty"`
	ItemCount      int                       `json:"itemCount"`
	Subtotal       decimal.Decimal           `json:"subtotal"`
	ShippingCost   decimal.Decimal           `json:"shippingCost"`
	CartTotal      decimal.Decimal           `json:"cartTotal"`
	ShippingRates  ShippingRates             `json:"shippingRates"`
	PaymentMethods []enums.PaymentMethod     `json:"paymentMethods"`
}

// Status reports the stored checkout along with the live cart totals.
func (s *Service) Status(ctx context.Context, sessionID string) (*StatusView, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	method := ""
	if current != nil && current.ShippingInfo != nil {
		method = current.ShippingInfo.ShippingMethod
	}
	summary, total, err := s.cartTotal(ctx, sessionID, method)
	if err != nil {
		return nil, err
	}
	shippingCost, _ := s.shipping.Cost(method)
	return &StatusView{
		Session:        current,
		ItemCount:      summary.ItemCount,
		Subtotal:       summary.Subtotal,
		ShippingCost:   shippingCost,
		CartTotal:      total,
		ShippingRates:  s.shipping,
		PaymentMethods: s.availableMethods(),
	}, nil
}

func (s *Service) availableMethods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, 4)
	if s.gateway != nil {
		out = append(out, enums.PaymentMethodCard)
	}
	for _, m := range enums.ManualPaymentMethods() {
		if s.manual.Handles[m] != "" {
			out = append(out, m)
		}
	}
	return out
}
