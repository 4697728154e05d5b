package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Sink names used for metrics and logs.
const (
	SinkDatabase = "database"
	SinkAirtable = "airtable"
)

// Airtable column names of the Orders table.
const (
	colOrderID          = "Order ID"
	colLine             = "Line"
	colProductID        = "Product ID"
	colProductName      = "Product Name"
	colQuantity         = "Quantity"
	colWeight           = "Weight"
	colSalesPrice       = "Sales Price"
	colCustomerName     = "Customer Name"
	colEmail            = "Email"
	colPhone            = "Phone"
	colShippingAddress  = "Shipping Address"
	colShippingMethod   = "Shipping Method"
	colPaymentReference = "Payment Reference"
	colPaymentMethod    = "Payment Method"
	colCurrency         = "Currency"
	colCreatedAt        = "Created At"
)

func decodePayload(env outbox.PayloadEnvelope) (*OrderPayload, error) {
	var payload OrderPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, outbox.NewNonRetryableError(err)
	}
	if payload.OrderID == "" || len(payload.Records) == 0 {
		return nil, outbox.NewNonRetryableError(errors.New("order payload missing order id or records"))
	}
	return &payload, nil
}

// DatabaseSink writes order lines to order_records using the drainer's
// transaction, so delivery and the published marker commit together.
type DatabaseSink struct {
	repo *Repository
}

func NewDatabaseSink(repo *Repository) *DatabaseSink {
	return &DatabaseSink{repo: repo}
}

func (s *DatabaseSink) Deliver(ctx context.Context, tx *gorm.DB, _ models.OutboxEvent, env outbox.PayloadEnvelope) error {
	payload, err := decodePayload(env)
	if err != nil {
		return err
	}
	if _, err := s.repo.WithTx(tx).InsertRecords(ctx, payload.Records); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSinkWrite, err, "write order records")
	}
	return nil
}

type recordStore interface {
	ListRecords(ctx context.Context, table, formula string) ([]airtable.Record, error)
	CreateRecords(ctx context.Context, table string, records []airtable.Fields) ([]airtable.Record, error)
}

// AirtableSink appends order lines to the Orders table. Lines already
// present for the order are skipped so a retried delivery after a partial
// batch does not duplicate rows.
type AirtableSink struct {
	client recordStore
	table  string
	logg   *logger.Logger
}

func NewAirtableSink(client recordStore, table string, logg *logger.Logger) (*AirtableSink, error) {
	if client == nil {
		return nil, errors.New("airtable client required")
	}
	if table == "" {
		return nil, errors.New("orders table required")
	}
	return &AirtableSink{client: client, table: table, logg: logg}, nil
}

func (s *AirtableSink) Deliver(ctx context.Context, _ *gorm.DB, _ models.OutboxEvent, env outbox.PayloadEnvelope) error {
	payload, err := decodePayload(env)
	if err != nil {
		return err
	}

	existing, err := s.client.ListRecords(ctx, s.table, airtable.FieldEquals(colOrderID, payload.OrderID))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSinkWrite, err, "list airtable order lines")
	}
	present := make(map[int]struct{}, len(existing))
	for _, rec := range existing {
		if line, ok := rec.Fields.Number(colLine); ok {
			present[int(line)] = struct{}{}
		}
	}

	missing := make([]airtable.Fields, 0, len(payload.Records))
	for _, rec := range payload.Records {
		if _, ok := present[rec.LineNumber]; ok {
			continue
		}
		missing = append(missing, orderFields(rec))
	}
	if len(missing) == 0 {
		return nil
	}

	if _, err := s.client.CreateRecords(ctx, s.table, missing); err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeSinkWrite, err, "write airtable order lines")
		if airtable.IsRejected(err) {
			return outbox.NewNonRetryableError(wrapped)
		}
		return wrapped
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": payload.OrderID,
			"lines":    len(missing),
		}), "order lines written to airtable")
	}
	return nil
}

func orderFields(rec models.OrderRecord) airtable.Fields {
	price, _ := rec.SalesPrice.Float64()
	fields := airtable.Fields{
		colOrderID:          rec.OrderID,
		colLine:             rec.LineNumber,
		colProductID:        rec.ProductID,
		colProductName:      rec.ProductName,
		colQuantity:         rec.Quantity,
		colSalesPrice:       price,
		colCustomerName:     rec.CustomerName,
		colShippingAddress:  rec.ShippingAddress,
		colShippingMethod:   rec.ShippingMethod,
		colPaymentReference: rec.PaymentReference,
		colPaymentMethod:    string(rec.PaymentMethod),
		colCurrency:         rec.Currency,
		colCreatedAt:        rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.SelectedWeight != nil {
		fields[colWeight] = *rec.SelectedWeight
	}
	if rec.CustomerEmail != nil {
		fields[colEmail] = *rec.CustomerEmail
	}
	if rec.CustomerPhone != nil {
		fields[colPhone] = *rec.CustomerPhone
	}
	return fields
}
