package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, payload string) RawExtraction {
	t.Helper()
	raw, err := ParseRawExtraction([]byte(payload))
	require.NoError(t, err)
	return raw
}

func TestParseRawExtractionPreservesKeyOrder(t *testing.T) {
	raw := mustParse(t, `{"zeta":"1","alpha":"2","mid":"3"}`)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, raw.Keys())
}

func TestParseRawExtractionRejectsNonObject(t *testing.T) {
	_, err := ParseRawExtraction([]byte(`["a","b"]`))
	assert.Error(t, err)
}

func TestResolveAliasPriority(t *testing.T) {
	// Both aliases present: the earlier one wins regardless of raw order.
	raw := mustParse(t, `{"recipient":"Generic Co","client_name":"Acme Ltd"}`)
	spec := FieldSpec{
		Name:     "name",
		Aliases:  []string{"client_name", "recipient"},
		Prefixes: []string{"client"},
		Suffixes: []string{"name"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "Acme Ltd", v)
}

func TestResolveEmptyStringIsAbsent(t *testing.T) {
	raw := mustParse(t, `{"client_name":"  ","recipient":"Fallback Inc"}`)
	spec := FieldSpec{
		Name:    "name",
		Aliases: []string{"client_name", "recipient"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "Fallback Inc", v)
}

func TestResolveExactComboBeforeSubstring(t *testing.T) {
	// The substring-qualifying key comes first in raw order, but the exact
	// prefix_suffix combination is a higher tier and must win.
	raw := mustParse(t, `{"the_customer_email_field":"loose@x.com","customer_email":"exact@x.com"}`)
	spec := FieldSpec{
		Name:     "email",
		Aliases:  []string{"client_email"},
		Prefixes: []string{"client", "customer"},
		Suffixes: []string{"email"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "exact@x.com", v)
}

func TestResolveSubstringNeedsBothTokens(t *testing.T) {
	raw := mustParse(t, `{"some_email_thing":"suffixonly@x.com","buyer_contact_email":"both@x.com"}`)
	spec := FieldSpec{
		Name:     "email",
		Aliases:  []string{"client_email"},
		Prefixes: []string{"client", "buyer"},
		Suffixes: []string{"email"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "both@x.com", v)
}

func TestResolveSuffixOnlyFallback(t *testing.T) {
	raw := mustParse(t, `{"order_ref":"x","grand_total":"1,250.00"}`)
	spec := FieldSpec{
		Name:     "total",
		Aliases:  []string{"total_amount", "total"},
		Suffixes: []string{"total", "amount"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "1,250.00", v)
}

func TestResolveCaseInsensitiveKeys(t *testing.T) {
	raw := mustParse(t, `{"Client_Name":"Acme Ltd"}`)
	spec := FieldSpec{Name: "name", Aliases: []string{"client_name"}}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "Acme Ltd", v)
}

func TestResolveNumberLeaf(t *testing.T) {
	raw := mustParse(t, `{"total":420.5}`)
	spec := FieldSpec{Name: "total", Aliases: []string{"total"}}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, json.Number("420.5"), v)
}

func TestResolveSkipsNestedValues(t *testing.T) {
	// Objects and arrays are not leaf values; empty arrays are absent.
	raw := mustParse(t, `{"notes":{"a":1},"extra_notes":[],"final_notes":"see attachment"}`)
	spec := FieldSpec{
		Name:     "notes",
		Aliases:  []string{"notes", "comments"},
		Suffixes: []string{"notes"},
	}

	v, ok := Resolve(raw, spec)
	require.True(t, ok)
	assert.Equal(t, "see attachment", v)
}

func TestResolveAbsent(t *testing.T) {
	raw := mustParse(t, `{"unrelated":"x"}`)
	spec := FieldSpec{
		Name:     "phone",
		Aliases:  []string{"client_phone"},
		Prefixes: []string{"client"},
		Suffixes: []string{"phone"},
	}

	_, ok := Resolve(raw, spec)
	assert.False(t, ok)
}

func TestResolveIsPure(t *testing.T) {
	raw := mustParse(t, `{"client_name":"Acme Ltd","recipient":"Other"}`)
	spec := FieldSpec{Name: "name", Aliases: []string{"client_name", "recipient"}}

	first, ok1 := Resolve(raw, spec)
	second, ok2 := Resolve(raw, spec)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, first, second)
}
