package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	unknownProductID   = "unknown"
	unknownProductName = "Unknown item"
)

// Customer is the buyer block copied onto every order line.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// OrderInput is everything needed to turn a confirmed payment into order lines.
type OrderInput struct {
	PaymentReference string
	PaymentMethod    enums.PaymentMethod
	Amount           decimal.Decimal
	Currency         string
	SessionID        string
	CheckoutID       string
	Customer         Customer
	ShippingAddress  string
	ShippingMethod   string
	Items            []SummaryItem
	Source           Source
}

// BuildRecords expands in into one OrderRecord per item. SalesPrice is the
// unit price: lines with a stored price use it, the rest share what is left
// of the paid amount evenly per unit. When every line is priced the leftover
// is the shipping charge and gets no line of its own. With no items a single
// "unknown" line carries the full amount.
func BuildRecords(orderID string, in OrderInput, createdAt time.Time) []models.OrderRecord {
	items := in.Items
	if len(items) == 0 {
		items = []SummaryItem{{ProductID: unknownProductID, Name: unknownProductName, Quantity: 1}}
	}

	unpricedQty := 0
	remainder := in.Amount
	for _, it := range items {
		if unit, ok := it.UnitPrice(); ok {
			remainder = remainder.Sub(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
		} else {
			unpricedQty += it.Quantity
		}
	}
	evenUnit := decimal.Zero
	if unpricedQty > 0 && remainder.IsPositive() {
		evenUnit = remainder.Div(decimal.NewFromInt(int64(unpricedQty)))
	}

	base := models.OrderRecord{
		OrderID:          orderID,
		CustomerName:     in.Customer.Name,
		CustomerEmail:    optional(in.Customer.Email),
		CustomerPhone:    optional(in.Customer.Phone),
		ShippingAddress:  in.ShippingAddress,
		ShippingMethod:   in.ShippingMethod,
		PaymentReference: in.PaymentReference,
		PaymentMethod:    in.PaymentMethod,
		Currency:         in.Currency,
		CreatedAt:        createdAt.UTC(),
	}

	records := make([]models.OrderRecord, 0, len(items))
	for i, it := range items {
		rec := base
		rec.LineNumber = i + 1
		rec.ProductID = it.ProductID
		rec.ProductName = it.Name
		if rec.ProductName == "" {
			rec.ProductName = it.ProductID
		}
		rec.Quantity = it.Quantity
		rec.SelectedWeight = optional(it.Weight)

		unit, ok := it.UnitPrice()
		if !ok {
			unit = evenUnit
		}
		rec.SalesPrice = unit.Round(2)
		records = append(records, rec)
	}
	return records
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
