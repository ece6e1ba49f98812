package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/invoyisi/resolution-service/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestValidateConsistentInvoice(t *testing.T) {
	v := NewAmountValidator()

	result := v.Validate(&InvoiceAmounts{
		Subtotal: d("500"),
		Tax:      d("50"),
		Discount: d("0"),
		Total:    d("550"),
		Items: []models.LineItem{
			{Description: "Consulting", Quantity: d("4"), UnitPrice: d("100"), Amount: d("400")},
			{Description: "Travel", Quantity: d("1"), UnitPrice: d("100"), Amount: d("100")},
		},
	})

	assert.True(t, result.Valid)
	assert.False(t, result.NeedsReview)
	assert.True(t, result.Computed.ItemSum.Equal(d("500")))
	assert.True(t, result.Computed.ExpectedTotal.Equal(d("550")))
}

func TestValidateSubtotalMismatch(t *testing.T) {
	v := NewAmountValidator()

	result := v.Validate(&InvoiceAmounts{
		Subtotal: d("900"),
		Total:    d("900"),
		Items: []models.LineItem{
			{Description: "Consulting", Quantity: d("4"), UnitPrice: d("100"), Amount: d("400")},
		},
	})

	assert.False(t, result.Valid)
	if assert.Len(t, result.Errors, 2) {
		assert.Equal(t, "subtotal_mismatch", result.Errors[0].Code)
		assert.Equal(t, "total_mismatch", result.Errors[1].Code)
	}
}

func TestValidateWithinTolerance(t *testing.T) {
	v := NewAmountValidator()

	// 2% off, inside the 5% tolerance
	result := v.Validate(&InvoiceAmounts{
		Subtotal: d("102"),
		Total:    d("102"),
		Items: []models.LineItem{
			{Description: "Service", Quantity: d("1"), UnitPrice: d("100"), Amount: d("100")},
		},
	})

	assert.True(t, result.Valid)
}

func TestValidateLineAmountMismatchIsWarning(t *testing.T) {
	v := NewAmountValidator()

	result := v.Validate(&InvoiceAmounts{
		Subtotal: d("700"),
		Total:    d("700"),
		Items: []models.LineItem{
			{Description: "Consulting", Quantity: d("4"), UnitPrice: d("100"), Amount: d("700")},
		},
	})

	assert.True(t, result.NeedsReview)
	if assert.NotEmpty(t, result.Warnings) {
		assert.Equal(t, "line_amount_mismatch", result.Warnings[0].Code)
	}
}

func TestValidateDiscountExceedsSubtotal(t *testing.T) {
	v := NewAmountValidator()

	result := v.Validate(&InvoiceAmounts{
		Subtotal: d("100"),
		Discount: d("150"),
		Total:    d("0"),
	})

	assert.True(t, result.NeedsReview)
	found := false
	for _, w := range result.Warnings {
		if w.Code == "discount_exceeds_subtotal" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateDueBeforeIssue(t *testing.T) {
	v := NewAmountValidator()

	issued := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	result := v.Validate(&InvoiceAmounts{
		Subtotal:   d("100"),
		Total:      d("100"),
		IssuedDate: issued,
		DueDate:    issued.AddDate(0, 0, -3),
	})

	assert.True(t, result.NeedsReview)
	found := false
	for _, w := range result.Warnings {
		if w.Code == "due_before_issue" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateZeroInvoiceIsQuiet(t *testing.T) {
	v := NewAmountValidator()

	result := v.Validate(&InvoiceAmounts{})

	assert.True(t, result.Valid)
	assert.False(t, result.NeedsReview)
}
