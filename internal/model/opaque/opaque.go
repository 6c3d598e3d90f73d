// Package opaque reads client supplied JSON values the relay does not own.
package opaque

import (
	"bytes"
	"encoding/json"
)

// Text returns the value of a JSON string, or the literal text of a JSON
// number. Anything else (null, bool, object, array) reports false.
func Text(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}

// Display is Text for log fields; values without a text form are logged raw.
func Display(raw json.RawMessage) string {
	if s, ok := Text(raw); ok {
		return s
	}
	return string(raw)
}
