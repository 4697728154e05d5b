package checkout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ShippingRates maps a shipping method name to its cost in major units.
type ShippingRates map[string]decimal.Decimal

// ParseShippingRates converts the configured method:cost pairs.
func ParseShippingRates(raw map[string]string) (ShippingRates, error) {
	rates := make(ShippingRates, len(raw))
	for method, cost := range raw {
		name := normalizeMethod(method)
		if name == "" {
			return nil, fmt.Errorf("shipping method name required")
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(cost))
		if err != nil {
			return nil, fmt.Errorf("shipping rate %q: %w", method, err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("shipping rate %q is negative", method)
		}
		rates[name] = amount
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("at least one shipping method must be configured")
	}
	return rates, nil
}

// Cost returns the price of method and whether it is offered.
func (r ShippingRates) Cost(method string) (decimal.Decimal, bool) {
	cost, ok := r[normalizeMethod(method)]
	return cost, ok
}

// Methods lists the offered methods in name order.
func (r ShippingRates) Methods() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

// ManualPayments holds the payee handles shown for non-card methods.
type ManualPayments struct {
	Handles map[enums.PaymentMethod]string
	Note    string
}

// ManualPaymentsFromConfig picks the handles out of the env configuration.
func ManualPaymentsFromConfig(cfg config.PaymentMethodsConfig) ManualPayments {
	return ManualPayments{
		Handles: map[enums.PaymentMethod]string{
			enums.PaymentMethodZelle:   strings.TrimSpace(cfg.ZelleHandle),
			enums.PaymentMethodVenmo:   strings.TrimSpace(cfg.VenmoHandle),
			enums.PaymentMethodCashApp: strings.TrimSpace(cfg.CashAppTag),
		},
		Note: strings.TrimSpace(cfg.Instructions),
	}
}

// Instructions tells the shopper how to settle a manual payment.
type Instructions struct {
	Method    enums.PaymentMethod `json:"method"`
	PayTo     string              `json:"payTo,omitempty"`
	Amount    decimal.Decimal     `json:"amount"`
	Currency  string              `json:"currency"`
	Reference string              `json:"reference"`
	Note      string              `json:"note,omitempty"`
}

func (m ManualPayments) instructions(method enums.PaymentMethod, amount decimal.Decimal, currency, reference string) Instructions {
	return Instructions{
		Method:    method,
		PayTo:     m.Handles[method],
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		Note:      m.Note,
	}
}
