package table

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ryanbastic/go-docsync/internal/record"
)

// ErrInvalidView is returned for a filter or sort the table cannot apply.
var ErrInvalidView = errors.New("invalid filter or sort")

// Predicate selects rows for a filtered view.
type Predicate func(r *Row) bool

// Op is a filter comparison.
type Op string

const (
	OpEqual     Op = "eq"
	OpNotEqual  Op = "ne"
	OpContains  Op = "contains"
	OpPrefix    Op = "prefix"
	OpGreater   Op = "gt"
	OpGreaterEq Op = "ge"
	OpLess      Op = "lt"
	OpLessEq    Op = "le"
	OpEmpty     Op = "empty"
	OpNotEmpty  Op = "notempty"
)

// Condition compares one column's cell text against Value. Numeric
// comparisons apply when both sides parse as numbers.
type Condition struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  string `json:"value,omitempty"`
}

// Filter is a conjunction of conditions. Applying an empty filter restores
// the unfiltered view.
type Filter []Condition

// Compile returns the predicate for f, or nil when f is empty.
func (f Filter) Compile() (Predicate, error) {
	if len(f) == 0 {
		return nil, nil
	}
	for _, c := range f {
		if c.Column == "" {
			return nil, fmt.Errorf("%w: filter column is required", ErrInvalidView)
		}
		switch c.Op {
		case OpEqual, OpNotEqual, OpContains, OpPrefix, OpGreater, OpGreaterEq, OpLess, OpLessEq, OpEmpty, OpNotEmpty:
		default:
			return nil, fmt.Errorf("%w: unknown filter operator %q", ErrInvalidView, c.Op)
		}
	}
	conds := append(Filter(nil), f...)
	return func(r *Row) bool {
		for _, c := range conds {
			if !c.match(r) {
				return false
			}
		}
		return true
	}, nil
}

func (c Condition) match(r *Row) bool {
	v, _ := r.Get(c.Column)
	text := v.Text()
	switch c.Op {
	case OpEmpty:
		return text == ""
	case OpNotEmpty:
		return text != ""
	case OpContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(c.Value))
	case OpPrefix:
		return strings.HasPrefix(strings.ToLower(text), strings.ToLower(c.Value))
	}

	cmp := compareText(text, c.Value)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEq:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessEq:
		return cmp <= 0
	}
	return false
}

// SortSpec orders rows by one column.
type SortSpec struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// sortRows stably orders rows by specs, earlier specs taking precedence.
// Null and absent cells sort first.
func sortRows(rows []*Row, specs []SortSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range specs {
			a, _ := rows[i].Get(s.Column)
			b, _ := rows[j].Get(s.Column)
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if s.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareValues(a, b record.Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}
	if a.Kind() == record.KindBool && b.Kind() == record.KindBool {
		switch {
		case a.BoolVal() == b.BoolVal():
			return 0
		case !a.BoolVal():
			return -1
		}
		return 1
	}
	return compareText(a.Text(), b.Text())
}

// compareText compares numerically when both sides are numbers and
// lexically otherwise.
func compareText(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
