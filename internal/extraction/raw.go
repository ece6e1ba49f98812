package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawExtraction is the key/value result returned by a document-understanding
// provider. Key names are arbitrary and not controlled by this service, so
// the original key order is preserved: the fallback scans in the resolver and
// the line-item detector depend on it being stable.
type RawExtraction struct {
	keys   []string
	values map[string]any
}

// ParseRawExtraction decodes a JSON object into a RawExtraction, keeping the
// object's own key order. Numbers decode as json.Number so amounts survive
// without float rounding until they are parsed into decimals.
func ParseRawExtraction(data []byte) (RawExtraction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return RawExtraction{}, fmt.Errorf("invalid extraction payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return RawExtraction{}, fmt.Errorf("extraction payload is not a JSON object")
	}

	raw := RawExtraction{values: make(map[string]any)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return RawExtraction{}, fmt.Errorf("invalid extraction payload: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return RawExtraction{}, fmt.Errorf("extraction payload has a non-string key")
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return RawExtraction{}, fmt.Errorf("invalid value for %q: %w", key, err)
		}

		if _, seen := raw.values[key]; !seen {
			raw.keys = append(raw.keys, key)
		}
		raw.values[key] = value
	}

	if _, err := dec.Token(); err != nil {
		return RawExtraction{}, fmt.Errorf("invalid extraction payload: %w", err)
	}

	return raw, nil
}

// Keys returns the raw keys in their original order.
func (r RawExtraction) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get looks a key up case-insensitively. An exact match wins over a
// case-folded one.
func (r RawExtraction) Get(key string) (any, bool) {
	if v, ok := r.values[key]; ok {
		return v, true
	}
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.ToLower(k) == lower {
			return r.values[k], true
		}
	}
	return nil, false
}

// Len returns the number of top-level keys.
func (r RawExtraction) Len() int {
	return len(r.keys)
}

// Empty reports whether the extraction holds no data at all.
func (r RawExtraction) Empty() bool {
	return len(r.keys) == 0
}
