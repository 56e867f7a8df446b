package table

import (
	"strings"
	"time"

	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/storage"
)

// DisplayLayout is the format date-like values are rendered in.
const DisplayLayout = "2006-01-02T15:04:05"

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 3:04:05 PM",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	"20060102150405",
	"20060102",
}

// Normalizer flattens records into table rows.
type Normalizer struct {
	layout             storage.Layout
	location           *time.Location
	coerceNumericDates bool
	system             map[string]bool
}

type NormalizerOption func(*Normalizer)

// WithLocation sets the zone dates are rendered in. Default UTC.
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithNumericDates controls whether all-digit strings that satisfy a date
// layout (such as "20240115") are rendered as dates. Default on.
func WithNumericDates(on bool) NormalizerOption {
	return func(n *Normalizer) {
		n.coerceNumericDates = on
	}
}

func NewNormalizer(layout storage.Layout, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		layout:             layout,
		location:           time.UTC,
		coerceNumericDates: true,
		system:             make(map[string]bool, len(layout.SystemColumns)),
	}
	for _, c := range layout.SystemColumns {
		n.system[c] = true
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize appends rec to tbl as a new row, adding a column for every
// field not seen before.
func (n *Normalizer) Normalize(rec *record.Record, tbl *Table) {
	tbl.typed = n.layout.TypedColumns
	row := tbl.AddRow()
	for _, key := range rec.Keys() {
		v, _ := rec.Get(key)
		typ := TypeString
		if n.layout.TypedColumns {
			typ = typeOf(v)
		}
		i := tbl.AddColumn(key, typ)
		row.set(key, n.cell(v, tbl.columns[i].Type))
		row.source[key] = v
	}
}

// Finish runs once after a batch: key columns move to the front and system
// columns to the end, in the order they were first seen.
func (n *Normalizer) Finish(tbl *Table) {
	var trail []string
	for _, c := range tbl.columns {
		if n.system[c.Name] {
			trail = append(trail, c.Name)
		}
	}
	tbl.reorder(n.layout.KeyColumns, trail)
}

// Table builds a finished table from recs.
func (n *Normalizer) Table(recs []*record.Record) *Table {
	tbl := New()
	for _, rec := range recs {
		n.Normalize(rec, tbl)
	}
	n.Finish(tbl)
	return tbl
}

func (n *Normalizer) cell(v record.Value, typ ColumnType) record.Value {
	switch v.Kind() {
	case record.KindNull:
		return record.Null()
	case record.KindString:
		if s, ok := n.formatDate(v.Str()); ok {
			return record.String(s)
		}
		return v
	case record.KindInt, record.KindFloat, record.KindBool:
		if typ != TypeString {
			if c, ok := coerceValue(v, typ); ok {
				return c
			}
		}
		return record.String(v.Text())
	}
	return record.String(v.Text())
}

// formatDate renders s in the display zone and layout if it parses as a
// date under any known layout.
func (n *Normalizer) formatDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (!n.coerceNumericDates && isAllDigits(s)) {
		return "", false
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.In(n.location).Format(DisplayLayout), true
		}
	}
	return "", false
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
