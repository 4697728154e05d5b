package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Airtable column names of the Checkouts table.
const (
	colCheckoutID     = "Checkout ID"
	colSessionID      = "Session ID"
	colStep           = "Step"
	colCustomerName   = "Customer Name"
	colEmail          = "Email"
	colPhone          = "Phone"
	colShippingMethod = "Shipping Method"
	colPaymentMethod  = "Payment Method"
	colOrderID        = "Order ID"
	colPaymentRef     = "Payment Reference"
	colCartTotal      = "Cart Total"
	colStartedAt      = "Started At"
	colUpdatedAt      = "Updated At"
)

// Snapshot is what the tracker records for one checkout.
type Snapshot struct {
	Session   *sessions.CheckoutSession
	CartTotal *decimal.Decimal
}

// Tracker mirrors checkout progress to an external store for the sales team.
type Tracker interface {
	// Started creates the tracking record and returns its id.
	Started(ctx context.Context, snap Snapshot) (string, error)
	// Progress updates the record identified by the session's tracking id.
	Progress(ctx context.Context, snap Snapshot) error
}

type recordWriter interface {
	CreateRecord(ctx context.Context, table string, fields airtable.Fields) (string, error)
	UpdateRecord(ctx context.Context, table, recordID string, fields airtable.Fields) error
}

// AirtableTracker writes to the Checkouts table.
type AirtableTracker struct {
	client recordWriter
	table  string
	logg   *logger.Logger
	now    func() time.Time
}

func NewAirtableTracker(client recordWriter, table string, logg *logger.Logger) (*AirtableTracker, error) {
	if client == nil {
		return nil, errors.New("airtable client required")
	}
	if table == "" {
		return nil, errors.New("checkouts table required")
	}
	return &AirtableTracker{client: client, table: table, logg: logg, now: time.Now}, nil
}

func (t *AirtableTracker) Started(ctx context.Context, snap Snapshot) (string, error) {
	if snap.Session == nil {
		return "", errors.New("session required")
	}
	fields := t.fields(snap)
	fields[colStartedAt] = t.now().UTC().Format(time.RFC3339)
	return t.client.CreateRecord(ctx, t.table, fields)
}

func (t *AirtableTracker) Progress(ctx context.Context, snap Snapshot) error {
	if snap.Session == nil {
		return errors.New("session required")
	}
	if snap.Session.TrackingRecordID == "" {
		// started tracking failed earlier; nothing to update
		return nil
	}
	return t.client.UpdateRecord(ctx, t.table, snap.Session.TrackingRecordID, t.fields(snap))
}

func (t *AirtableTracker) fields(snap Snapshot) airtable.Fields {
	s := snap.Session
	fields := airtable.Fields{
		colCheckoutID: s.CheckoutID,
		colSessionID:  s.SessionID,
		colStep:       string(s.Step),
		colUpdatedAt:  t.now().UTC().Format(time.RFC3339),
	}
	if s.PersonalInfo != nil {
		fields[colCustomerName] = s.PersonalInfo.FullName()
		if s.PersonalInfo.Email != "" {
			fields[colEmail] = s.PersonalInfo.Email
		}
		if s.PersonalInfo.Phone != "" {
			fields[colPhone] = s.PersonalInfo.Phone
		}
	}
	if s.ShippingInfo != nil {
		fields[colShippingMethod] = s.ShippingInfo.ShippingMethod
	}
	if s.PaymentMethod != nil {
		fields[colPaymentMethod] = string(*s.PaymentMethod)
	}
	if s.OrderID != "" {
		fields[colOrderID] = s.OrderID
	}
	if s.PaymentReference != "" {
		fields[colPaymentRef] = s.PaymentReference
	}
	if snap.CartTotal != nil {
		total, _ := snap.CartTotal.Float64()
		fields[colCartTotal] = total
	}
	return fields
}

// Noop discards tracking updates. Used when Airtable is not configured.
type Noop struct{}

func (Noop) Started(context.Context, Snapshot) (string, error) { return "", nil }

func (Noop) Progress(context.Context, Snapshot) error { return nil }
