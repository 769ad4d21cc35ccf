// Package payload normalizes loosely shaped JSON responses from the
// external services. Each lookup takes the known aliases of one concept in
// priority order and returns the first one present.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// String returns the first alias holding a non-empty scalar, rendered as
// text. Numbers keep their literal form, so 777 becomes "777".
func String(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func Int(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		s := String(m, k)
		if s == "" {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if d, err := decimal.NewFromString(s); err == nil && d.IsInteger() {
			return d.IntPart(), true
		}
	}
	return 0, false
}

func Decimal(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		s := String(m, k)
		if s == "" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

func Object(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if o, ok := m[k].(map[string]any); ok {
			return o
		}
	}
	return nil
}

// List returns data itself when it is a JSON array, otherwise the first
// alias of the object holding an array.
func List(data any, keys ...string) []map[string]any {
	var raw []any
	switch t := data.(type) {
	case []any:
		raw = t
	case map[string]any:
		for _, k := range keys {
			if l, ok := t[k].([]any); ok {
				raw = l
				break
			}
		}
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if o, ok := item.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out
}

// Require is String for fields without which the response is unusable.
func Require(m map[string]any, what string, keys ...string) (string, error) {
	if s := String(m, keys...); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("response has no %s (looked for %s)", what, strings.Join(keys, ", "))
}
