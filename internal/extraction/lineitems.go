package extraction

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/invoyisi/resolution-service/internal/models"
)

// Preferred sources for line items, checked in order before the generic scan.
var preferredItemKeys = []string{"line_items", "items", "products", "services"}

// Key groups a candidate array's first element must cover (one from each) to
// qualify as line items during the generic scan.
var (
	descriptionLikeKeys = []string{"description", "name", "item", "product", "service"}
	quantityLikeKeys    = []string{"quantity", "qty", "count"}
	priceLikeKeys       = []string{"price", "unit_price", "rate", "cost", "amount"}
)

// FindLineItems scans a raw extraction for an array of objects that looks
// like invoice line items. Preferred key names are tried first; failing
// those, every key is inspected in the raw structure's own order and the
// first array whose leading element covers a description-like, a
// quantity-like and a price-like key wins.
func FindLineItems(raw RawExtraction) ([]models.LineItem, bool) {
	for _, key := range preferredItemKeys {
		if v, ok := raw.Get(key); ok {
			if arr, ok := v.([]any); ok && len(arr) > 0 {
				return mapLineItems(arr), true
			}
		}
	}

	for _, key := range raw.Keys() {
		v, _ := raw.Get(key)
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		first, ok := arr[0].(map[string]any)
		if !ok {
			continue
		}
		if hasAnyKey(first, descriptionLikeKeys) &&
			hasAnyKey(first, quantityLikeKeys) &&
			hasAnyKey(first, priceLikeKeys) {
			return mapLineItems(arr), true
		}
	}

	return nil, false
}

// SynthesizeLineItem builds the single fallback item used when a document
// has no detectable item array: the resolved total becomes both the unit
// price and the amount, so every invoice candidate carries at least one line.
func SynthesizeLineItem(total decimal.Decimal) models.LineItem {
	return models.LineItem{
		Description: "Service",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   total,
		Amount:      total,
	}
}

func mapLineItems(arr []any) []models.LineItem {
	items := make([]models.LineItem, 0, len(arr))
	for _, el := range arr {
		obj, _ := el.(map[string]any)
		items = append(items, mapLineItem(obj))
	}
	return items
}

// mapLineItem resolves one raw item through small per-attribute alias
// chains. A missing quantity defaults to 1; missing price and amount default
// to 0; unparseable numerics degrade to 0.
func mapLineItem(obj map[string]any) models.LineItem {
	item := models.LineItem{
		Description: "Item",
		Quantity:    decimal.NewFromInt(1),
	}
	if obj == nil {
		return item
	}

	if v, ok := firstLeaf(obj, "description", "name", "item", "product", "service"); ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			item.Description = s
		}
	}
	if v, ok := firstLeaf(obj, "quantity", "qty", "count"); ok {
		item.Quantity = ParseAmount(v)
	}
	if v, ok := firstLeaf(obj, "unit_price", "price", "rate", "cost"); ok {
		item.UnitPrice = ParseAmount(v)
	}
	if v, ok := firstLeaf(obj, "amount", "total", "line_total", "subtotal"); ok {
		item.Amount = ParseAmount(v)
	}
	return item
}

func firstLeaf(obj map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && leafPresent(v) {
			return v, true
		}
	}
	// Raw item keys are as uncontrolled as top-level ones.
	for _, key := range keys {
		for k, v := range obj {
			if strings.EqualFold(k, key) && leafPresent(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func hasAnyKey(obj map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	for k := range obj {
		for _, key := range keys {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	return false
}
