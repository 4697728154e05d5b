package airtable

import (
	"encoding/json"
	"strconv"
	"strings"
)

// String returns a text field, or "" when absent or not text.
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		// lookup and linked fields come back as arrays
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// Number returns a numeric field. Currency and number columns decode as
// float64; text columns holding a number are accepted too.
func (f Fields) Number(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(v), "$"), 64)
		return n, err == nil
	}
	return 0, false
}

// Bool returns a checkbox field. Airtable omits unchecked boxes.
func (f Fields) Bool(key string) bool {
	v, _ := f[key].(bool)
	return v
}
