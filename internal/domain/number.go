package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Numeric reports the float value of v when v is a JSON number.
// Booleans and strings are not numbers.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// LooseNumeric is Numeric that also accepts numeric strings such as "8.5".
// Hand-edited datasets frequently quote their scores.
func LooseNumeric(v any) (float64, bool) {
	if f, ok := Numeric(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// Text returns v as a trimmed string. Non-string values yield "".
func Text(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
