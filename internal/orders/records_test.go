package orders

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var orderIDPattern = regexp.MustCompile(`^ORD-\d{14}-[A-Z2-7]{6}$`)

func TestNewOrderIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	id, err := NewOrderID(now)
	if err != nil {
		t.Fatalf("new order id: %v", err)
	}
	if !orderIDPattern.MatchString(id) {
		t.Fatalf("unexpected order id %q", id)
	}
	if !strings.HasPrefix(id, "ORD-20260304050607-") {
		t.Fatalf("timestamp not embedded: %q", id)
	}
}

func TestEncodeSummaryTrimsToLimit(t *testing.T) {
	items := []SummaryItem{
		{ProductID: "recAAAAAAAAAAAAAA", Name: strings.Repeat("Long Product Name ", 5), Quantity: 2, Price: "12.50"},
		{ProductID: "recBBBBBBBBBBBBBB", Name: strings.Repeat("Another Name ", 5), Quantity: 1, Weight: "1/8 oz", Price: "35.00"},
	}

	full := EncodeSummary(items, 1000)
	if !strings.Contains(full, `"n":`) {
		t.Fatalf("full summary should keep names: %s", full)
	}

	noNames := EncodeSummary(items, 150)
	if strings.Contains(noNames, `"n":`) || !strings.Contains(noNames, `"p":"12.50"`) {
		t.Fatalf("expected names dropped but prices kept: %s", noNames)
	}

	bare := EncodeSummary(items, 90)
	if strings.Contains(bare, `"p":`) || !strings.Contains(bare, `"w":"1/8 oz"`) {
		t.Fatalf("expected prices dropped: %s", bare)
	}

	if got := EncodeSummary(items, 10); got != "" {
		t.Fatalf("expected empty summary when nothing fits, got %s", got)
	}

	decoded, err := DecodeSummary(bare)
	if err != nil {
		t.Fatalf("decode trimmed summary: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Quantity != 2 {
		t.Fatalf("unexpected decoded summary %+v", decoded)
	}
}

func TestDecodeSummaryRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "[]", `[{"id":"","q":1}]`, `[{"id":"a","q":0}]`} {
		if _, err := DecodeSummary(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestBuildRecordsUsesStoredPrices(t *testing.T) {
	in := OrderInput{
		PaymentReference: "pi_1",
		PaymentMethod:    enums.PaymentMethodCard,
		Amount:           decimal.RequireFromString("65.00"),
		Currency:         "usd",
		Customer:         Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		ShippingAddress:  "1 Main St, Springfield, IL 62701",
		ShippingMethod:   "standard",
		Items: []SummaryItem{
			{ProductID: "recA", Name: "Gummies", Quantity: 2, Price: "12.50"},
			{ProductID: "recB", Quantity: 1, Weight: "1/8 oz", Price: "35"},
		},
	}
	records := BuildRecords("ORD-1", in, time.Now())
	if len(records) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(records))
	}
	if !records[0].SalesPrice.Equal(decimal.RequireFromString("12.50")) || !records[1].SalesPrice.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("unexpected prices %s %s", records[0].SalesPrice, records[1].SalesPrice)
	}
	if records[1].ProductName != "recB" {
		t.Fatalf("missing name should fall back to product id, got %q", records[1].ProductName)
	}
	if records[0].LineNumber != 1 || records[1].LineNumber != 2 {
		t.Fatalf("line numbers must be 1-based and ordered")
	}
	if records[0].CustomerEmail == nil || *records[0].CustomerEmail != "ada@example.com" || records[0].CustomerPhone != nil {
		t.Fatalf("unexpected contact fields")
	}
}

func TestBuildRecordsDistributesEvenly(t *testing.T) {
	in := OrderInput{
		Amount: decimal.RequireFromString("10.00"),
		Items: []SummaryItem{
			{ProductID: "a", Quantity: 1},
			{ProductID: "b", Quantity: 2},
		},
	}
	records := BuildRecords("ORD-1", in, time.Now())
	if !records[0].SalesPrice.Equal(decimal.RequireFromString("3.33")) {
		t.Fatalf("unexpected first line %s", records[0].SalesPrice)
	}
	if !records[1].SalesPrice.Equal(decimal.RequireFromString("3.33")) || records[1].Quantity != 2 {
		t.Fatalf("second line should carry the unit price, got %s x %d", records[1].SalesPrice, records[1].Quantity)
	}
}

func lineTotal(records []models.OrderRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.SalesPrice.Mul(decimal.NewFromInt(int64(rec.Quantity))))
	}
	return total
}

func TestBuildRecordsRoundTripsPaidAmount(t *testing.T) {
	cent := decimal.RequireFromString("0.01")
	cases := []struct {
		name     string
		amount   string
		shipping string
		items    []SummaryItem
	}{
		{
			name:   "priced lines",
			amount: "60.00",
			items: []SummaryItem{
				{ProductID: "a", Quantity: 2, Price: "12.50"},
				{ProductID: "b", Quantity: 1, Price: "35.00"},
			},
		},
		{
			name:     "priced lines plus shipping",
			amount:   "69.99",
			shipping: "9.99",
			items: []SummaryItem{
				{ProductID: "a", Quantity: 3, Price: "10.00"},
				{ProductID: "b", Quantity: 2, Price: "15.00"},
			},
		},
		{
			name:   "mixed priced and unpriced",
			amount: "50.00",
			items: []SummaryItem{
				{ProductID: "a", Quantity: 2, Price: "10.00"},
				{ProductID: "b", Quantity: 3},
			},
		},
		{
			name:   "uneven split",
			amount: "100.00",
			items: []SummaryItem{
				{ProductID: "a", Quantity: 3},
				{ProductID: "b", Quantity: 4},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			records := BuildRecords("ORD-1", OrderInput{Amount: amount, Items: tc.items}, time.Now())
			if len(records) != len(tc.items) {
				t.Fatalf("expected %d lines, got %d", len(tc.items), len(records))
			}
			got := lineTotal(records)
			if tc.shipping != "" {
				got = got.Add(decimal.RequireFromString(tc.shipping))
			}
			// per-unit rounding can drift by a cent per unit
			var units int64
			for _, it := range tc.items {
				units += int64(it.Quantity)
			}
			if got.Sub(amount).Abs().GreaterThan(cent.Mul(decimal.NewFromInt(units))) {
				t.Fatalf("lines total %s, paid %s", got, amount)
			}
		})
	}
}

func TestBuildRecordsFallsBackToUnknownLine(t *testing.T) {
	in := OrderInput{Amount: decimal.RequireFromString("42.10")}
	records := BuildRecords("ORD-1", in, time.Now())
	if len(records) != 1 {
		t.Fatalf("expected synthetic line, got %d", len(records))
	}
	rec := records[0]
	if rec.ProductID != "unknown" || rec.Quantity != 1 || !rec.SalesPrice.Equal(decimal.RequireFromString("42.10")) {
		t.Fatalf("unexpected fallback line %+v", rec)
	}
}
