package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgdb "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Source names the path that triggered a materialization.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceClient  Source = "client"
	SourceManual  Source = "manual"
)

// OrderPayload is the outbox payload both sinks receive.
type OrderPayload struct {
	OrderID          string               `json:"orderId"`
	PaymentReference string               `json:"paymentReference"`
	Records          []models.OrderRecord `json:"records"`
}

// Result reports the order a payment maps to.
type Result struct {
	OrderID   string
	Duplicate bool
	Records   []models.OrderRecord
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartFlag interface {
	SetCartCleared(ctx context.Context, sessionID, checkoutID string, cleared bool) (bool, error)
}

type cartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

type MaterializerParams struct {
	DB       txRunner
	Repo     *Repository
	Outbox   eventEmitter
	Sessions cartFlag
	Cart     cartClearer
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
	Now      func() time.Time
}

// Materializer turns a confirmed payment into exactly one order.
type Materializer struct {
	db       txRunner
	repo     *Repository
	outbox   eventEmitter
	sessions cartFlag
	cart     cartClearer
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

func NewMaterializer(params MaterializerParams) (*Materializer, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("order repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		db:       params.DB,
		repo:     params.Repo,
		outbox:   params.Outbox,
		sessions: params.Sessions,
		cart:     params.Cart,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// Materialize records the order for in.PaymentReference. The claim row and
// one outbox event per sink commit in one transaction; a second call for the
// same reference returns the existing order id with Duplicate set and writes
// nothing. The cart of the paying checkout is cleared at most once either
// way.
func (m *Materializer) Materialize(ctx context.Context, in OrderInput) (*Result, error) {
	ref := strings.TrimSpace(in.PaymentReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if !in.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	in.PaymentReference = ref
	in.Currency = payments.NormalizeCurrency(in.Currency)

	ctx = m.logg.WithFields(ctx, map[string]any{
		"payment_reference": ref,
		"session_id":        in.SessionID,
		"checkout_id":       in.CheckoutID,
		"source":            string(in.Source),
	})

	if existing, err := m.repo.FindMaterialization(ctx, ref); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup materialization")
	} else if existing != nil {
		return m.duplicate(ctx, in, existing.OrderID), nil
	}

	createdAt := m.now().UTC()
	orderID, err := NewOrderID(createdAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
	}
	records := BuildRecords(orderID, in, createdAt)

	err = m.db.WithTx(ctx, func(tx *gorm.DB) error {
		claim := &models.OrderMaterialization{
			PaymentReference: ref,
			OrderID:          orderID,
			SessionID:        in.SessionID,
			AmountMinor:      payments.ToMinorUnits(in.Amount),
			Currency:         in.Currency,
			Source:           string(in.Source),
			LineCount:        len(records),
		}
		if err := m.repo.WithTx(tx).InsertMaterialization(ctx, claim); err != nil {
			return err
		}
		payload := OrderPayload{OrderID: orderID, PaymentReference: ref, Records: records}
		for _, eventType := range enums.OrderSinkEvents() {
			if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     eventType,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data:          payload,
				OccurredAt:    createdAt,
			}); err != nil {
				return fmt.Errorf("emit %s: %w", eventType, err)
			}
		}
		return nil
	})
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			existing, findErr := m.repo.FindMaterialization(ctx, ref)
			if findErr == nil && existing != nil {
				return m.duplicate(ctx, in, existing.OrderID), nil
			}
		}
		m.metrics.IncMaterialization(string(in.Source), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "materialize order")
	}

	m.metrics.IncMaterialization(string(in.Source), "created")
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"order_id":   orderID,
		"line_count": len(records),
		"amount":     in.Amount.StringFixed(2),
	}), "order materialized")

	m.clearCart(ctx, in)
	return &Result{OrderID: orderID, Records: records}, nil
}

func (m *Materializer) duplicate(ctx context.Context, in OrderInput, orderID string) *Result {
	m.metrics.IncMaterialization(string(in.Source), "duplicate")
	m.logg.Info(m.logg.WithField(ctx, "order_id", orderID), "payment already materialized")
	// Without a checkout id a late duplicate cannot tell its cart from a
	// newer one, and the first signal already ran the clear.
	if in.CheckoutID != "" {
		m.clearCart(ctx, in)
	}
	return &Result{OrderID: orderID, Duplicate: true}
}

// clearCart empties the paying checkout's cart once. The flag flips before
// the delete so concurrent completions cannot both clear; a failed delete
// resets it for the next signal to retry. A session that has started a new
// checkout is left alone.
func (m *Materializer) clearCart(ctx context.Context, in OrderInput) {
	if in.SessionID == "" || m.sessions == nil || m.cart == nil {
		return
	}
	changed, err := m.sessions.SetCartCleared(ctx, in.SessionID, in.CheckoutID, true)
	if err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "cart clear guard failed")
		return
	}
	if !changed {
		return
	}
	if err := m.cart.Clear(ctx, in.SessionID); err != nil {
		_, resetErr := m.sessions.SetCartCleared(ctx, in.SessionID, in.CheckoutID, false)
		m.logg.Error(ctx, "cart clear failed", multierr.Append(err, resetErr))
	}
}
