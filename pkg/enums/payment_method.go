package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod is the shopper's chosen way to pay.
type PaymentMethod string

const (
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodZelle   PaymentMethod = "zelle"
	PaymentMethodVenmo   PaymentMethod = "venmo"
	PaymentMethodCashApp PaymentMethod = "cash_app"
)

// ManualPaymentMethods lists the methods settled outside the card gateway,
// in display order.
func ManualPaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMethodZelle, PaymentMethodVenmo, PaymentMethodCashApp}
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodCard || p.IsManual()
}

func (p PaymentMethod) IsManual() bool {
	switch p {
	case PaymentMethodZelle, PaymentMethodVenmo, PaymentMethodCashApp:
		return true
	}
	return false
}

// ParsePaymentMethod accepts the method name in any case, surrounding
// whitespace ignored.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if !method.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}
