package record

import (
	"math"
	"strconv"
	"strings"
)

// Infer recovers a typed Value from display text. Attempts run in a fixed
// order: bool, int, float, nested JSON, then the raw string. The order
// decides which type a numeric-looking string collapses to ("1" is an int,
// never a float or a bool).
func Infer(text string) Value {
	if b, ok := parseBool(text); ok {
		return Bool(b)
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Float(f)
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v Value
		if err := v.UnmarshalJSON([]byte(trimmed)); err == nil {
			return Retype(v)
		}
	}
	return String(text)
}

// Retype applies Infer to every string leaf inside v, recursing through
// objects and arrays. Non-string scalars are returned unchanged.
func Retype(v Value) Value {
	switch v.Kind() {
	case KindString:
		return Infer(v.Str())
	case KindObject:
		out := New()
		src := v.Obj()
		for _, k := range src.Keys() {
			child, _ := src.Get(k)
			out.Set(k, Retype(child))
		}
		return Object(out)
	case KindArray:
		items := make([]Value, len(v.Items()))
		for i, it := range v.Items() {
			items[i] = Retype(it)
		}
		return Array(items...)
	}
	return v
}

// parseBool accepts true/false in any letter case, nothing else.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
