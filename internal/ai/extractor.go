// Package ai turns invoice documents into raw extraction payloads through a
// pluggable model provider. The payload keys are whatever the model chose to
// emit; downstream resolution tolerates vocabulary drift, so the prompt only
// suggests a vocabulary instead of enforcing a schema.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/invoyisi/resolution-service/internal/extraction"
)

// Extractor runs document extraction against one provider.
type Extractor struct {
	provider Provider
	log      zerolog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(provider Provider, log zerolog.Logger) *Extractor {
	return &Extractor{
		provider: provider,
		log:      log.With().Str("provider", provider.Name()).Logger(),
	}
}

// Extract processes OCR text or a base64 document image and returns the raw
// key/value payload with the model's key order preserved.
func (e *Extractor) Extract(ctx context.Context, ocrText string, imageBase64 string) (extraction.RawExtraction, error) {
	startTime := time.Now()

	// Vision mode when there is an image and no usable OCR text
	isVisionMode := imageBase64 != "" && strings.TrimSpace(ocrText) == ""

	var prompt string
	if isVisionMode {
		prompt = buildVisionPrompt()
	} else {
		prompt = buildTextPrompt(ocrText)
	}

	response, err := e.provider.ExtractData(ctx, prompt, imageBase64)
	if err != nil {
		return extraction.RawExtraction{}, fmt.Errorf("AI extraction failed: %w", err)
	}

	e.log.Debug().
		Bool("vision", isVisionMode).
		Int("response_len", len(response)).
		Dur("took", time.Since(startTime)).
		Msg("extraction response received")

	raw, err := extraction.ParseRawExtraction([]byte(cleanResponse(response)))
	if err != nil {
		return extraction.RawExtraction{}, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return raw, nil
}

// cleanResponse strips markdown code fences that models wrap around JSON.
func cleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

const promptRules = `## RULES
1. Return ONLY valid JSON - no markdown, no commentary
2. Use a SINGLE flat JSON object; line items go in an array under "line_items"
3. NEVER invent data - omit a key entirely when you cannot read its value
4. Dates in YYYY-MM-DD format
5. Amounts as plain numbers without currency symbols
6. Keep the keys in the order the fields appear on the document

## SUGGESTED KEYS
{
  "client_name": "who the invoice is billed to",
  "client_email": "...",
  "client_phone": "...",
  "client_address": "...",
  "company_name": "the client's company, if distinct from the person",
  "invoice_number": "...",
  "issue_date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "line_items": [{"description": "...", "quantity": 1, "unit_price": 100, "amount": 100}],
  "subtotal": 0,
  "tax": 0,
  "discount": 0,
  "total": 0,
  "notes": "payment terms or remarks"
}
You may use different key names when the document labels a field differently.`

// buildVisionPrompt creates the prompt for direct image analysis.
func buildVisionPrompt() string {
	return `You are an expert at reading invoices. Read the attached invoice image carefully.

Examine the whole image: the header (issuer, logo), the billing block ("Bill To",
"Invoice To", "Customer"), the line item table, and the totals section at the
bottom. The CLIENT is who the invoice is billed TO, not who issued it.

Extract every field you can read and return them as JSON.

` + promptRules
}

// buildTextPrompt creates the prompt for OCR text analysis.
func buildTextPrompt(ocrText string) string {
	return fmt.Sprintf(`You are an expert at reading invoices. Extract the fields of this invoice from its OCR text.

The CLIENT is who the invoice is billed TO ("Bill To", "Invoice To", "Customer"),
not who issued it. Find the invoice number, dates, every line item with its
quantity and price, and the totals.

%s

Invoice text:
%s`, promptRules, ocrText)
}
