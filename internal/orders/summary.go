package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MetadataValueLimit is the gateway's maximum length of one metadata value.
const MetadataValueLimit = 500

// SummaryItem is the compact cart line stored in payment metadata under
// order_summary. Price is the unit price as a decimal string.
type SummaryItem struct {
	ProductID string `json:"id"`
	Name      string `json:"n,omitempty"`
	Quantity  int    `json:"q"`
	Weight    string `json:"w,omitempty"`
	Price     string `json:"p,omitempty"`
}

// UnitPrice parses Price, reporting false when absent or malformed.
func (s SummaryItem) UnitPrice() (decimal.Decimal, bool) {
	if strings.TrimSpace(s.Price) == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s.Price)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// EncodeSummary renders items as JSON no longer than limit. When the full
// form does not fit it drops names, then prices; if even ids and quantities
// are too long it returns "" and the order falls back to a single line.
func EncodeSummary(items []SummaryItem, limit int) string {
	if len(items) == 0 {
		return ""
	}
	if limit <= 0 {
		limit = MetadataValueLimit
	}
	variants := []func(SummaryItem) SummaryItem{
		func(it SummaryItem) SummaryItem { return it },
		func(it SummaryItem) SummaryItem { it.Name = ""; return it },
		func(it SummaryItem) SummaryItem { it.Name, it.Price = "", ""; return it },
	}
	for _, strip := range variants {
		trimmed := make([]SummaryItem, len(items))
		for i, it := range items {
			trimmed[i] = strip(it)
		}
		encoded, err := json.Marshal(trimmed)
		if err != nil {
			return ""
		}
		if len(encoded) <= limit {
			return string(encoded)
		}
	}
	return ""
}

// DecodeSummary parses an order_summary value. Any malformed entry rejects
// the whole summary.
func DecodeSummary(raw string) ([]SummaryItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("order summary is empty")
	}
	var items []SummaryItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode order summary: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("order summary has no items")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, fmt.Errorf("order summary item %d has no product id", i)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("order summary item %d has quantity %d", i, it.Quantity)
		}
	}
	return items, nil
}
