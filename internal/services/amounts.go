// Package services holds advisory checks that run over resolved invoices.
// Findings are reported to the caller; they never block a commit.
package services

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoyisi/resolution-service/internal/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field    string          `json:"field"`
	Code     string          `json:"code"`
	Expected decimal.Decimal `json:"expected,omitempty"`
	Actual   decimal.Decimal `json:"actual,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ValidationWarning represents a non-critical issue
type ValidationWarning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ComputedValues holds the expected values the checks compared against.
type ComputedValues struct {
	ItemSum       decimal.Decimal `json:"item_sum"`
	ExpectedTotal decimal.Decimal `json:"expected_total"`
}

// ValidationResult is the response from validation
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	NeedsReview bool                `json:"needs_review"`
	Errors      []ValidationError   `json:"errors"`
	Warnings    []ValidationWarning `json:"warnings"`
	Computed    ComputedValues      `json:"computed"`
}

// InvoiceAmounts is the slice of an invoice the checks look at.
type InvoiceAmounts struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	Items      []models.LineItem
	IssuedDate time.Time
	DueDate    time.Time
}

// AmountValidator cross-checks invoice amounts against each other.
type AmountValidator struct {
	tolerance decimal.Decimal // relative tolerance (0.05 = 5%)
}

// NewAmountValidator creates a validator with the default 5% tolerance.
func NewAmountValidator() *AmountValidator {
	return &AmountValidator{tolerance: decimal.NewFromFloat(0.05)}
}

// Validate performs all cross-validations on invoice amounts
func (v *AmountValidator) Validate(input *InvoiceAmounts) *ValidationResult {
	result := &ValidationResult{
		Valid:       true,
		NeedsReview: false,
		Errors:      []ValidationError{},
		Warnings:    []ValidationWarning{},
	}

	itemSum := decimal.Zero
	for _, item := range input.Items {
		itemSum = itemSum.Add(item.Amount)
	}
	expectedTotal := input.Subtotal.Add(input.Tax).Sub(input.Discount)

	result.Computed = ComputedValues{
		ItemSum:       itemSum,
		ExpectedTotal: expectedTotal,
	}

	v.validateSubtotal(input, result, itemSum)
	v.validateTotal(input, result, expectedTotal)
	v.validateItems(input, result)
	v.validateDiscount(input, result)
	v.validateDates(input, result)

	result.Valid = len(result.Errors) == 0
	result.NeedsReview = len(result.Warnings) > 0

	return result
}

// validateSubtotal checks the subtotal matches the sum of line items
func (v *AmountValidator) validateSubtotal(input *InvoiceAmounts, result *ValidationResult, itemSum decimal.Decimal) {
	if len(input.Items) == 0 || itemSum.LessThanOrEqual(decimal.Zero) {
		return
	}

	if !withinTolerance(input.Subtotal, itemSum, v.tolerance) {
		result.Errors = append(result.Errors, ValidationError{
			Field:    "subtotal",
			Code:     "subtotal_mismatch",
			Expected: itemSum,
			Actual:   input.Subtotal,
			Message:  "subtotal does not match the sum of line items",
		})
	}
}

// validateTotal checks total matches subtotal + tax - discount
func (v *AmountValidator) validateTotal(input *InvoiceAmounts, result *ValidationResult, expectedTotal decimal.Decimal) {
	if input.Total.LessThanOrEqual(decimal.Zero) {
		return
	}

	if !withinTolerance(input.Total, expectedTotal, v.tolerance) {
		result.Errors = append(result.Errors, ValidationError{
			Field:    "total",
			Code:     "total_mismatch",
			Expected: expectedTotal,
			Actual:   input.Total,
			Message:  "total does not match subtotal + tax - discount",
		})
	}
}

// validateItems checks each line amount against quantity * unit price
func (v *AmountValidator) validateItems(input *InvoiceAmounts, result *ValidationResult) {
	for i, item := range input.Items {
		expected := item.Quantity.Mul(item.UnitPrice)
		if expected.LessThanOrEqual(decimal.Zero) || item.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if !withinTolerance(item.Amount, expected, v.tolerance) {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "items",
				Code:    "line_amount_mismatch",
				Message: "line " + itemLabel(i, item) + " amount does not match quantity * unit price",
			})
		}
	}
}

// validateDiscount warns when the discount exceeds the subtotal
func (v *AmountValidator) validateDiscount(input *InvoiceAmounts, result *ValidationResult) {
	if input.Discount.GreaterThan(input.Subtotal) && input.Subtotal.GreaterThan(decimal.Zero) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "discount",
			Code:    "discount_exceeds_subtotal",
			Message: "discount exceeds the subtotal",
		})
	}
}

// validateDates warns when the due date precedes the issue date
func (v *AmountValidator) validateDates(input *InvoiceAmounts, result *ValidationResult) {
	if input.IssuedDate.IsZero() || input.DueDate.IsZero() {
		return
	}
	if input.DueDate.Before(input.IssuedDate) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "due_date",
			Code:    "due_before_issue",
			Message: "due date precedes the issue date",
		})
	}
}

// withinTolerance reports whether actual is within the relative tolerance of
// expected, using the larger of the two as the base.
func withinTolerance(actual, expected, tolerance decimal.Decimal) bool {
	base := expected
	if actual.GreaterThan(base) {
		base = actual
	}
	if base.LessThanOrEqual(decimal.Zero) {
		return true
	}
	diff := actual.Sub(expected).Abs()
	return diff.LessThanOrEqual(base.Mul(tolerance))
}

func itemLabel(i int, item models.LineItem) string {
	if item.Description != "" {
		return item.Description
	}
	return strconv.Itoa(i + 1)
}
