package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartItem is one line of a shopper's cart. UnitPrice is resolved from the
// catalog when the line is added and refreshed on every read.
type CartItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID      string          `gorm:"column:session_id;not null;index" json:"-"`
	ProductID      string          `gorm:"column:product_id;not null" json:"productId"`
	ProductName    string          `gorm:"column:product_name;not null" json:"productName"`
	Quantity       int             `gorm:"column:quantity;not null" json:"quantity"`
	SelectedWeight *string         `gorm:"column:selected_weight" json:"selectedWeight,omitempty"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unitPrice"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error { return assignID(&c.ID) }
