package extraction

import (
	"encoding/json"
	"strings"
)

// FieldSpec describes how one canonical field is located inside a raw
// extraction. Aliases are priority-ordered: earlier entries encode stronger
// domain signals (e.g. "client_name" before the generic "recipient").
type FieldSpec struct {
	Name     string
	Aliases  []string
	Prefixes []string
	Suffixes []string
	Required bool
}

// Resolve locates the value for one canonical field. Strategies are tried in
// strict priority order, stopping at the first hit:
//
//  1. alias scan in the spec's order
//  2. exact "prefix_suffix" key combinations
//  3. keys containing both a prefix and a suffix token
//  4. keys containing a suffix token alone
//
// Key comparisons are case-insensitive. Only string and number leaves count
// as values here; an empty or whitespace-only string is treated as absent.
// Resolve is a pure function of its inputs.
func Resolve(raw RawExtraction, spec FieldSpec) (any, bool) {
	for _, alias := range spec.Aliases {
		if v, ok := raw.Get(alias); ok && leafPresent(v) {
			return v, true
		}
	}

	for _, prefix := range spec.Prefixes {
		for _, suffix := range spec.Suffixes {
			if v, ok := raw.Get(prefix + "_" + suffix); ok && leafPresent(v) {
				return v, true
			}
		}
	}

	if len(spec.Prefixes) > 0 {
		for _, key := range raw.Keys() {
			lower := strings.ToLower(key)
			if containsAny(lower, spec.Prefixes) && containsAny(lower, spec.Suffixes) {
				if v, _ := raw.Get(key); leafPresent(v) {
					return v, true
				}
			}
		}
	}

	for _, key := range raw.Keys() {
		if containsAny(strings.ToLower(key), spec.Suffixes) {
			if v, _ := raw.Get(key); leafPresent(v) {
				return v, true
			}
		}
	}

	return nil, false
}

func containsAny(key string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(key, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// leafPresent reports whether v is a usable field value: a non-empty string
// or a number. Nested objects and arrays are not field values at this stage;
// the line-item detector handles arrays separately.
func leafPresent(v any) bool {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case json.Number:
		return true
	case float64, int, int64:
		return true
	default:
		return false
	}
}
