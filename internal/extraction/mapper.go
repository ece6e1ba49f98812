package extraction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoyisi/resolution-service/internal/models"
)

// EntityType distinguishes the two candidate kinds.
type EntityType string

const (
	EntityClient  EntityType = "client"
	EntityInvoice EntityType = "invoice"
)

const dateLayout = "2006-01-02"

// defaultInvoiceNotes is the provenance note for invoices resolved without
// one.
const defaultInvoiceNotes = "Created from document processing"

// Candidate is an in-progress, not-yet-persisted entity built from a raw
// extraction. It is mutated only through a resolution session; once a value
// is resolved, only an explicit edit may change or clear it.
type Candidate struct {
	Type      EntityType
	Fields    map[string]any
	LineItems []models.LineItem

	missing map[string]struct{}
}

// MissingRequired returns the required canonical fields still unresolved,
// sorted for stable output.
func (c *Candidate) MissingRequired() []string {
	out := make([]string, 0, len(c.missing))
	for name := range c.missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Complete reports whether the candidate is eligible for commit.
func (c *Candidate) Complete() bool { return len(c.missing) == 0 }

// RecomputeMissing rebuilds the required-field checklist from scratch.
// hasClient reports whether an invoice candidate's client requirement is
// satisfied externally (an explicit selection or a committed client).
func (c *Candidate) RecomputeMissing(hasClient bool) {
	c.missing = make(map[string]struct{})

	var specs []FieldSpec
	switch c.Type {
	case EntityClient:
		specs = clientFieldSpecs
	case EntityInvoice:
		specs = invoiceFieldSpecs
	}
	for _, spec := range specs {
		if spec.Required && !fieldPresent(c.Fields[spec.Name]) {
			c.missing[spec.Name] = struct{}{}
		}
	}

	if c.Type == EntityInvoice && !hasClient && !fieldPresent(c.Fields[FieldClientID]) {
		c.missing[FieldClientID] = struct{}{}
	}
}

// MapClient resolves a client candidate out of a raw extraction. The notes
// field gets a timestamped provenance default when none resolves.
func MapClient(raw RawExtraction, now time.Time) *Candidate {
	c := &Candidate{
		Type:   EntityClient,
		Fields: make(map[string]any),
	}

	for _, spec := range clientFieldSpecs {
		if v, ok := Resolve(raw, spec); ok {
			c.Fields[spec.Name] = stringify(v)
		} else {
			c.Fields[spec.Name] = ""
		}
	}
	c.Fields[FieldNotes] = fmt.Sprintf("Created from document processing on %s", now.Format(dateLayout))

	c.RecomputeMissing(false)
	return c
}

// MapInvoice resolves an invoice candidate. Unresolved fields get defaults
// rather than staying absent: a generated placeholder number, today as the
// issue date, issue date + 7 days as the due date, and a literal notes
// string. The client reference is never alias-resolved; it stays missing
// until the session links a client.
func MapInvoice(raw RawExtraction, now time.Time) *Candidate {
	c := &Candidate{
		Type:   EntityInvoice,
		Fields: make(map[string]any),
	}

	for _, spec := range invoiceFieldSpecs {
		v, ok := Resolve(raw, spec)
		if !ok {
			continue
		}
		if IsAmountField(spec.Name) {
			c.Fields[spec.Name] = v
		} else {
			c.Fields[spec.Name] = stringify(v)
		}
	}

	if !fieldPresent(c.Fields[FieldNumber]) {
		c.Fields[FieldNumber] = placeholderNumber(now)
	}
	if !fieldPresent(c.Fields[FieldIssued]) {
		c.Fields[FieldIssued] = now.Format(dateLayout)
	}
	if !fieldPresent(c.Fields[FieldDue]) {
		issued, ok := ParseDate(asString(c.Fields[FieldIssued]))
		if !ok {
			issued = now
		}
		c.Fields[FieldDue] = issued.AddDate(0, 0, 7).Format(dateLayout)
	}
	if !fieldPresent(c.Fields[FieldNotes]) {
		c.Fields[FieldNotes] = defaultInvoiceNotes
	}

	reconcileAmounts(c, raw)

	c.RecomputeMissing(false)
	return c
}

// reconcileAmounts derives and cross-checks the four monetary fields.
// Subtotal falls back to the item-amount sum, tax and discount to zero, and
// total to subtotal + tax - discount. Every value is a defined decimal by
// the time the candidate reaches preview.
func reconcileAmounts(c *Candidate, raw RawExtraction) {
	items, found := FindLineItems(raw)
	if !found {
		total := ParseAmount(c.Fields[FieldTotal])
		items = []models.LineItem{SynthesizeLineItem(total)}
	}
	c.LineItems = items

	itemSum := decimal.Zero
	for _, item := range items {
		itemSum = itemSum.Add(item.Amount)
	}

	subtotal := itemSum
	if fieldPresent(c.Fields[FieldSubtotal]) {
		subtotal = ParseAmount(c.Fields[FieldSubtotal])
	}
	tax := ParseAmount(c.Fields[FieldTax])
	discount := ParseAmount(c.Fields[FieldDiscount])

	total := subtotal.Add(tax).Sub(discount)
	if fieldPresent(c.Fields[FieldTotal]) {
		if resolved := ParseAmount(c.Fields[FieldTotal]); resolved.IsPositive() {
			total = resolved
		}
	}

	c.Fields[FieldSubtotal] = subtotal
	c.Fields[FieldTax] = tax
	c.Fields[FieldDiscount] = discount
	c.Fields[FieldTotal] = total
}

// placeholderNumber generates the fallback invoice number from the
// millisecond clock.
func placeholderNumber(now time.Time) string {
	ms := fmt.Sprintf("%d", now.UnixMilli())
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "INV-" + ms
}

// ParseAmount coerces a raw value into a decimal. Strings may carry comma
// thousands separators. Anything unparseable degrades to zero; a monetary
// field never stays undefined.
func ParseAmount(v any) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val
	case float64:
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(val, ",", ""))
		if cleaned == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// ParseDate tries the date layouts that show up in extracted documents.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
		"01/02/2006",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fieldPresent(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case decimal.Decimal:
		return true
	default:
		return leafPresent(v)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
