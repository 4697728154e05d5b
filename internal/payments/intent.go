package payments

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Intent statuses that still accept amount changes.
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// ShippingAddress is the delivery address attached to an intent.
type ShippingAddress struct {
	Name       string
	Phone      string
	Line1      string
	City       string
	State      string
	PostalCode string
}

// SingleLine renders the address the way order records store it.
func (a *ShippingAddress) SingleLine() string {
	if a == nil {
		return ""
	}
	return a.Line1 + ", " + a.City + ", " + a.State + " " + a.PostalCode
}

// Intent is the gateway's payment intent as the checkout sees it. Amounts
// are in minor currency units.
type Intent struct {
	ID             string
	ClientSecret   string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         string
	Email          string
	Metadata       map[string]string
	Shipping       *ShippingAddress
	CreatedAt      time.Time
}

// Succeeded reports whether funds were captured.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == StatusSucceeded
}

// Updatable reports whether the intent has not been confirmed yet.
func (i *Intent) Updatable() bool {
	if i == nil {
		return false
	}
	return i.Status == StatusRequiresPaymentMethod || i.Status == StatusRequiresConfirmation
}

// PaidAmount is the settled amount, falling back to the requested amount.
func (i *Intent) PaidAmount() decimal.Decimal {
	if i == nil {
		return decimal.Zero
	}
	minor := i.AmountReceived
	if minor == 0 {
		minor = i.Amount
	}
	return FromMinorUnits(minor)
}

// CreateIntentInput describes a new intent.
type CreateIntentInput struct {
	Amount         int64
	Currency       string
	Email          string
	Description    string
	Metadata       map[string]string
	Shipping       *ShippingAddress
	IdempotencyKey string
}

// UpdateIntentInput resizes an unconfirmed intent and replaces its metadata.
type UpdateIntentInput struct {
	Amount   int64
	Metadata map[string]string
	Shipping *ShippingAddress
}

// Gateway is the payment provider boundary.
type Gateway interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	UpdateIntent(ctx context.Context, id string, input UpdateIntentInput) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// ToMinorUnits converts a decimal amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts cents to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// NormalizeCurrency lowercases an ISO currency code, defaulting to usd.
func NormalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "usd"
	}
	return c
}
