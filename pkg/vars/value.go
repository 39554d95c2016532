package vars

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Render converts a variable value to its string form. Numbers drop
// trailing zeros; lists and mappings render as JSON text, which the loop
// keyword accepts back as an iterable source.
func Render(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToNumber coerces a value to float64. Strings are parsed; "1_000" style
// separators are accepted.
func ToNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), "_", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToList coerces a value to an iterable source: lists pass through,
// JSON array text parses, pipe-separated strings split, and any other
// non-empty string is a single-element source.
func ToList(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return []interface{}{}, true
		}
		if strings.HasPrefix(trimmed, "[") {
			var parsed []interface{}
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed, true
			}
		}
		if strings.Contains(trimmed, "|") {
			parts := strings.Split(trimmed, "|")
			out := make([]interface{}, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, true
		}
		return []interface{}{trimmed}, true
	default:
		return nil, false
	}
}
