package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderRecord is one purchased line item. All lines of a purchase share
// OrderID; rows are append-only.
type OrderRecord struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"-"`
	OrderID          string              `gorm:"column:order_id;not null;uniqueIndex:idx_order_records_order_line,priority:1" json:"orderId"`
	LineNumber       int                 `gorm:"column:line_number;not null;uniqueIndex:idx_order_records_order_line,priority:2" json:"lineNumber"`
	ProductID        string              `gorm:"column:product_id;not null" json:"productId"`
	ProductName      string              `gorm:"column:product_name;not null" json:"productName"`
	Quantity         int                 `gorm:"column:quantity;not null" json:"quantity"`
	SelectedWeight   *string             `gorm:"column:selected_weight" json:"selectedWeight,omitempty"`
	SalesPrice       decimal.Decimal     `gorm:"column:sales_price;type:numeric(12,2);not null" json:"salesPrice"`
	CustomerName     string              `gorm:"column:customer_name;not null" json:"customerName"`
	CustomerEmail    *string             `gorm:"column:customer_email" json:"customerEmail,omitempty"`
	CustomerPhone    *string             `gorm:"column:customer_phone" json:"customerPhone,omitempty"`
	ShippingAddress  string              `gorm:"column:shipping_address;not null" json:"shippingAddress"`
	ShippingMethod   string              `gorm:"column:shipping_method;not null" json:"shippingMethod"`
	PaymentReference string              `gorm:"column:payment_reference;not null" json:"paymentReference"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null" json:"paymentMethod"`
	Currency         string              `gorm:"column:currency;not null" json:"currency"`
	CreatedAt        time.Time           `gorm:"column:created_at;not null" json:"createdAt"`
}

func (o *OrderRecord) BeforeCreate(*gorm.DB) error { return assignID(&o.ID) }
