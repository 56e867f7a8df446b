package table

import (
	"math"
	"strconv"
	"strings"

	"github.com/ryanbastic/go-docsync/internal/record"
)

// coerceText converts edited text to the column type when it parses
// cleanly, and keeps the raw string otherwise. Blank text is null.
func coerceText(text string, typ ColumnType) record.Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return record.Null()
	}
	switch typ {
	case TypeInteger:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return record.Int(i)
		}
	case TypeDecimal:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return record.Float(f)
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return record.Bool(b)
		}
	}
	return record.String(text)
}

// coerceValue converts a typed scalar to the column type without loss.
func coerceValue(v record.Value, typ ColumnType) (record.Value, bool) {
	switch typ {
	case TypeInteger:
		if v.Kind() == record.KindInt {
			return v, true
		}
	case TypeDecimal:
		switch v.Kind() {
		case record.KindFloat:
			return v, true
		case record.KindInt:
			return record.Float(float64(v.IntVal())), true
		}
	case TypeBoolean:
		if v.Kind() == record.KindBool {
			return v, true
		}
	}
	return record.Value{}, false
}
