package models

import "time"

// OrderMaterialization claims a gateway payment reference for exactly one
// order id. The primary key doubles as the dedup guard across the webhook,
// client and manual completion paths.
type OrderMaterialization struct {
	PaymentReference string    `gorm:"column:payment_reference;primaryKey"`
	OrderID          string    `gorm:"column:order_id;not null;uniqueIndex"`
	SessionID        string    `gorm:"column:session_id"`
	AmountMinor      int64     `gorm:"column:amount_minor;not null"`
	Currency         string    `gorm:"column:currency;not null"`
	Source           string    `gorm:"column:source;not null"`
	LineCount        int       `gorm:"column:line_count;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
