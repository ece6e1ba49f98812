package extraction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMapClientResolvesFields(t *testing.T) {
	raw := mustParse(t, `{
		"client_name":"Jane Cooper",
		"buyer_email":"jane@coop.example",
		"telephone":"+1 555 0100",
		"billing_address":"1 Main St",
		"organization":"Cooper LLC"
	}`)

	c := MapClient(raw, testNow)

	assert.Equal(t, EntityClient, c.Type)
	assert.Equal(t, "Jane Cooper", c.Fields[FieldName])
	assert.Equal(t, "jane@coop.example", c.Fields[FieldEmail])
	assert.Equal(t, "+1 555 0100", c.Fields[FieldPhone])
	assert.Equal(t, "1 Main St", c.Fields[FieldAddress])
	assert.Equal(t, "Cooper LLC", c.Fields[FieldCompany])
	assert.Equal(t, "Created from document processing on 2025-03-10", c.Fields[FieldNotes])
	assert.True(t, c.Complete())
}

func TestMapClientMissingName(t *testing.T) {
	raw := mustParse(t, `{"email":"only@x.com"}`)

	c := MapClient(raw, testNow)

	assert.Equal(t, []string{FieldName}, c.MissingRequired())
	assert.False(t, c.Complete())
}

func TestMapInvoiceDefaults(t *testing.T) {
	raw := mustParse(t, `{"client_name":"Acme"}`)

	c := MapInvoice(raw, testNow)

	number, _ := c.Fields[FieldNumber].(string)
	assert.Regexp(t, `^INV-\d{6}$`, number)
	assert.Equal(t, "2025-03-10", c.Fields[FieldIssued])
	assert.Equal(t, "2025-03-17", c.Fields[FieldDue])
	assert.Equal(t, defaultInvoiceNotes, c.Fields[FieldNotes])
	// The only open requirement is the client link.
	assert.Equal(t, []string{FieldClientID}, c.MissingRequired())
}

func TestMapInvoiceResolvedNumberNotMissing(t *testing.T) {
	raw := mustParse(t, `{"invoice_no":"2024-0042"}`)

	c := MapInvoice(raw, testNow)

	assert.Equal(t, "2024-0042", c.Fields[FieldNumber])
}

func TestMapInvoiceSynthesizesItemFromTotal(t *testing.T) {
	raw := mustParse(t, `{"total":500}`)

	c := MapInvoice(raw, testNow)

	require.Len(t, c.LineItems, 1)
	assert.True(t, c.LineItems[0].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, c.LineItems[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, c.Fields[FieldTotal].(decimal.Decimal).Equal(decimal.NewFromInt(500)))
}

func TestMapInvoiceReconciliationFromItems(t *testing.T) {
	raw := mustParse(t, `{
		"items":[
			{"description":"A","quantity":1,"unit_price":50,"amount":50},
			{"description":"B","quantity":1,"unit_price":70,"amount":70}
		]
	}`)

	c := MapInvoice(raw, testNow)

	assert.True(t, c.Fields[FieldSubtotal].(decimal.Decimal).Equal(decimal.NewFromInt(120)))
	assert.True(t, c.Fields[FieldTax].(decimal.Decimal).IsZero())
	assert.True(t, c.Fields[FieldDiscount].(decimal.Decimal).IsZero())
	assert.True(t, c.Fields[FieldTotal].(decimal.Decimal).Equal(decimal.NewFromInt(120)))
}

func TestMapInvoiceResolvedAmountsWin(t *testing.T) {
	raw := mustParse(t, `{
		"subtotal":"1,000.00",
		"tax":"180",
		"discount":"80",
		"grand_total":"1100",
		"items":[{"description":"A","quantity":1,"unit_price":999,"amount":999}]
	}`)

	c := MapInvoice(raw, testNow)

	assert.True(t, c.Fields[FieldSubtotal].(decimal.Decimal).Equal(decimal.NewFromInt(1000)))
	assert.True(t, c.Fields[FieldTax].(decimal.Decimal).Equal(decimal.NewFromInt(180)))
	assert.True(t, c.Fields[FieldDiscount].(decimal.Decimal).Equal(decimal.NewFromInt(80)))
	assert.True(t, c.Fields[FieldTotal].(decimal.Decimal).Equal(decimal.NewFromInt(1100)))
}

func TestMapInvoiceComputedTotalWhenAbsent(t *testing.T) {
	raw := mustParse(t, `{
		"subtotal":200,
		"tax":30,
		"discount":10,
		"items":[{"description":"A","quantity":1,"unit_price":200,"amount":200}]
	}`)

	c := MapInvoice(raw, testNow)

	assert.True(t, c.Fields[FieldTotal].(decimal.Decimal).Equal(decimal.NewFromInt(220)))
}

func TestRecomputeMissingClientLink(t *testing.T) {
	raw := mustParse(t, `{"total":100}`)
	c := MapInvoice(raw, testNow)
	require.Equal(t, []string{FieldClientID}, c.MissingRequired())

	c.RecomputeMissing(true)
	assert.Empty(t, c.MissingRequired())

	// Recompute is a full rebuild, so revoking the link restores the entry.
	c.RecomputeMissing(false)
	assert.Equal(t, []string{FieldClientID}, c.MissingRequired())
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "0"},
		{"float", 12.5, "12.5"},
		{"comma string", "3,965.34", "3965.34"},
		{"plain string", "88", "88"},
		{"garbage", "n/a", "0"},
		{"empty", "", "0"},
		{"object", map[string]any{}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseAmount(tc.in)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s want %s", got, tc.want)
		})
	}
}

func TestParseDateFormats(t *testing.T) {
	for _, s := range []string{"2025-03-10", "10/03/2025", "2025/03/10"} {
		got, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, time.March, got.Month())
	}
	_, ok := ParseDate("soon")
	assert.False(t, ok)
}
