package table

import (
	"errors"
	"fmt"

	"github.com/ryanbastic/go-docsync/internal/record"
)

// ErrOutOfRange is returned for a row or column outside the current view.
var ErrOutOfRange = errors.New("cell out of range")

// Coord is a cell position in the current view.
type Coord struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Cache holds the current result table for a grid. Filtering derives a
// view from a snapshot of the unfiltered table; rows are shared between
// the two, so edits made through a filtered view survive clearing the
// filter. Dirty marks follow row identity, not position.
//
// A Cache is not safe for concurrent use; one owner mutates it.
type Cache struct {
	current  *Table
	original *Table
	dirty    *DirtyTracker
}

func NewCache() *Cache {
	return &Cache{current: New(), dirty: NewDirtyTracker()}
}

// Load replaces the table wholesale, dropping any filter and dirty marks.
func (c *Cache) Load(t *Table) {
	if t == nil {
		t = New()
	}
	c.current = t
	c.original = nil
	c.dirty.Clear()
}

// Table returns the current view.
func (c *Cache) Table() *Table { return c.current }

func (c *Cache) NumRows() int    { return c.current.NumRows() }
func (c *Cache) NumColumns() int { return c.current.NumColumns() }

// Filtered reports whether a filter is active.
func (c *Cache) Filtered() bool { return c.original != nil }

func (c *Cache) GetCell(row, col int) (record.Value, error) {
	return c.current.Value(row, col)
}

// SetCell stores text in the cell, coerced to the column type when it
// parses. Blank text stores null. The cell is marked dirty only if the
// stored value changed; the return value reports whether it did.
func (c *Cache) SetCell(row, col int, text string) (bool, error) {
	r, err := c.current.Row(row)
	if err != nil {
		return false, err
	}
	column, err := c.current.Column(col)
	if err != nil {
		return false, err
	}

	next := coerceText(text, column.Type)
	prev, had := r.Get(column.Name)
	if had && prev.Equal(next) {
		return false, nil
	}
	if !had && next.IsNull() {
		return false, nil
	}
	r.set(column.Name, next)
	c.dirty.Mark(r.ID(), column.Name)
	return true, nil
}

// ApplyFilter narrows the view to rows matching pred, always starting from
// the unfiltered table. A nil pred restores the unfiltered table.
func (c *Cache) ApplyFilter(pred Predicate) {
	if pred == nil {
		if c.original != nil {
			c.current = c.original
			c.original = nil
		}
		return
	}
	if c.original == nil {
		c.original = c.current
	}
	var rows []*Row
	for _, r := range c.original.rows {
		if pred(r) {
			rows = append(rows, r)
		}
	}
	c.current = c.original.view(rows)
}

// ApplySort reorders the current view in place. It does not touch the
// unfiltered snapshot.
func (c *Cache) ApplySort(specs ...SortSpec) error {
	for _, s := range specs {
		if _, ok := c.current.ColumnIndex(s.Column); !ok {
			return fmt.Errorf("%w: unknown sort column %q", ErrInvalidView, s.Column)
		}
	}
	if len(specs) == 0 {
		return nil
	}
	sortRows(c.current.rows, specs)
	return nil
}

// DirtyRows returns the current-view positions of dirty rows, ascending.
func (c *Cache) DirtyRows() []int {
	var out []int
	for i, r := range c.current.rows {
		if c.dirty.IsRowDirty(r.ID()) {
			out = append(out, i)
		}
	}
	return out
}

// DirtyCells returns the current-view coordinates of dirty cells.
func (c *Cache) DirtyCells() []Coord {
	var out []Coord
	for i, r := range c.current.rows {
		if !c.dirty.IsRowDirty(r.ID()) {
			continue
		}
		for j, col := range c.current.columns {
			if c.dirty.IsCellDirty(r.ID(), col.Name) {
				out = append(out, Coord{Row: i, Column: j})
			}
		}
	}
	return out
}

// PendingRows returns every dirty row, including rows a filter hides.
func (c *Cache) PendingRows() []RowID {
	return c.dirty.Rows()
}

// Discard drops the pending edits on the row at a current-view position.
func (c *Cache) Discard(row int) error {
	r, err := c.current.Row(row)
	if err != nil {
		return err
	}
	c.dirty.Forget(r.ID())
	return nil
}

// PendingCount returns the number of dirty rows.
func (c *Cache) PendingCount() int { return c.dirty.Len() }

// ClearDirty accepts every edit as stored and drops the dirty marks.
func (c *Cache) ClearDirty() {
	base := c.base()
	for _, id := range c.dirty.Rows() {
		r, ok := base.RowByID(id)
		if !ok {
			continue
		}
		rec := c.buildRecord(r)
		for _, col := range c.dirty.Columns(id) {
			if v, ok := rec.Get(col); ok {
				r.source[col] = v
			} else {
				delete(r.source, col)
			}
		}
	}
	c.dirty.Clear()
}

// base is the unfiltered table.
func (c *Cache) base() *Table {
	if c.original != nil {
		return c.original
	}
	return c.current
}

// RowRecord rebuilds the record for the row at a current-view position.
func (c *Cache) RowRecord(row int) (*record.Record, error) {
	r, err := c.current.Row(row)
	if err != nil {
		return nil, err
	}
	return c.buildRecord(r), nil
}

// RecordByID rebuilds the record for a row wherever it is, visible or not.
func (c *Cache) RecordByID(id RowID) (*record.Record, error) {
	r, ok := c.base().RowByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: row id %d", ErrOutOfRange, id)
	}
	return c.buildRecord(r), nil
}

// buildRecord converts a row back to a record in column order. Unedited
// cells take the value the store returned; edited cells are re-typed from
// their text unless the table has typed columns. Absent cells are left out.
func (c *Cache) buildRecord(r *Row) *record.Record {
	rec := record.New()
	for _, col := range c.current.columns {
		v, ok := r.Get(col.Name)
		if !ok {
			continue
		}
		if !c.dirty.IsCellDirty(r.ID(), col.Name) {
			if src, ok := r.Source(col.Name); ok {
				rec.Set(col.Name, src)
				continue
			}
		}
		if !c.current.typed {
			v = record.Retype(v)
		}
		rec.Set(col.Name, v)
	}
	return rec
}
