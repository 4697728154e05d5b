package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Airtable column names of the Products table.
const (
	fieldName         = "Name"
	fieldPrice        = "Price"
	fieldWeightPrices = "Weight Prices"
	fieldActive       = "Active"
)

// Product is the priced catalog entry carts are built from.
type Product struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Price        decimal.Decimal            `json:"price"`
	WeightPrices map[string]decimal.Decimal `json:"weightPrices,omitempty"`
	Active       bool                       `json:"active"`
}

// Weights lists the selectable weights in a stable order.
func (p Product) Weights() []string {
	out := make([]string, 0, len(p.WeightPrices))
	for w := range p.WeightPrices {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// PriceFor resolves the unit price for an optional weight selection.
func (p Product) PriceFor(weight *string) (decimal.Decimal, error) {
	if weight == nil || strings.TrimSpace(*weight) == "" {
		if len(p.WeightPrices) > 0 && p.Price.IsZero() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "selectedWeight is required for this product").
				WithDetails(map[string]any{"weights": p.Weights()})
		}
		return p.Price, nil
	}
	key := normalizeWeight(*weight)
	if price, ok := p.WeightPrices[key]; ok {
		return price, nil
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unsupported weight").
		WithDetails(map[string]any{"selectedWeight": *weight, "weights": p.Weights()})
}

// productFromRecord maps an Airtable Products row. Weight prices are kept in
// a long-text column as "label:price" pairs separated by commas or newlines.
func productFromRecord(rec airtable.Record) Product {
	p := Product{
		ID:     rec.ID,
		Name:   rec.Fields.String(fieldName),
		Active: rec.Fields.Bool(fieldActive),
	}
	if price, ok := rec.Fields.Number(fieldPrice); ok {
		p.Price = decimal.NewFromFloat(price).Round(2)
	}
	p.WeightPrices = parseWeightPrices(rec.Fields.String(fieldWeightPrices))
	return p
}

func parseWeightPrices(raw string) map[string]decimal.Decimal {
	if raw == "" {
		return nil
	}
	out := map[string]decimal.Decimal{}
	entries := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	for _, entry := range entries {
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 {
			continue
		}
		label := normalizeWeight(entry[:idx])
		price, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(entry[idx+1:]), "$"))
		if label == "" || err != nil || price.IsNegative() {
			continue
		}
		out[label] = price.Round(2)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeWeight(w string) string {
	return strings.ToLower(strings.Join(strings.Fields(w), " "))
}
