// Package table holds query results as an editable in-memory grid: typed
// columns, rows with stable identity, dirty tracking, filter and sort.
package table

import (
	"fmt"

	"github.com/ryanbastic/go-docsync/internal/record"
)

// ColumnType is the declared type of a column. Cells may still hold raw
// strings when an edit does not parse as the declared type.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInteger
	TypeDecimal
	TypeBoolean
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	}
	return "string"
}

// typeOf picks the column type for the first value observed in a column.
func typeOf(v record.Value) ColumnType {
	switch v.Kind() {
	case record.KindInt:
		return TypeInteger
	case record.KindFloat:
		return TypeDecimal
	case record.KindBool:
		return TypeBoolean
	}
	return TypeString
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// RowID identifies a row for the lifetime of the table it was created in,
// independent of its position in any view.
type RowID uint64

// Row is one record's cells keyed by column name. A column missing from
// the map was absent from the source record. source keeps the values as
// the store returned them, before display formatting.
type Row struct {
	id     RowID
	cells  map[string]record.Value
	source map[string]record.Value
}

func (r *Row) ID() RowID { return r.id }

// Get returns the cell for column and whether the row has one.
func (r *Row) Get(column string) (record.Value, bool) {
	v, ok := r.cells[column]
	return v, ok
}

func (r *Row) set(column string, v record.Value) {
	r.cells[column] = v
}

// Source returns the stored value a cell was built from.
func (r *Row) Source(column string) (record.Value, bool) {
	v, ok := r.source[column]
	return v, ok
}

func (r *Row) clone() *Row {
	out := &Row{
		id:     r.id,
		cells:  make(map[string]record.Value, len(r.cells)),
		source: make(map[string]record.Value, len(r.source)),
	}
	for k, v := range r.cells {
		out.cells[k] = v.Clone()
	}
	for k, v := range r.source {
		out.source[k] = v.Clone()
	}
	return out
}

// Table is an ordered set of columns and rows. It is not safe for
// concurrent use.
type Table struct {
	columns []Column
	index   map[string]int
	rows    []*Row
	nextID  RowID

	// typed tables keep edited strings as strings when rebuilding records.
	typed bool
}

func New() *Table {
	return &Table{index: make(map[string]int)}
}

func (t *Table) NumRows() int    { return len(t.rows) }
func (t *Table) NumColumns() int { return len(t.columns) }

// Columns returns a copy of the column list in display order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) Column(i int) (Column, error) {
	if i < 0 || i >= len(t.columns) {
		return Column{}, fmt.Errorf("%w: column %d", ErrOutOfRange, i)
	}
	return t.columns[i], nil
}

// ColumnIndex returns the display position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// AddColumn appends a column unless one with the same name exists, and
// returns its position.
func (t *Table) AddColumn(name string, typ ColumnType) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	t.columns = append(t.columns, Column{Name: name, Type: typ})
	t.index[name] = len(t.columns) - 1
	return len(t.columns) - 1
}

// AddRow appends an empty row with a fresh identity.
func (t *Table) AddRow() *Row {
	t.nextID++
	r := &Row{
		id:     t.nextID,
		cells:  make(map[string]record.Value),
		source: make(map[string]record.Value),
	}
	t.rows = append(t.rows, r)
	return r
}

func (t *Table) Row(i int) (*Row, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("%w: row %d", ErrOutOfRange, i)
	}
	return t.rows[i], nil
}

// RowByID finds a row by identity.
func (t *Table) RowByID(id RowID) (*Row, bool) {
	for _, r := range t.rows {
		if r.id == id {
			return r, true
		}
	}
	return nil, false
}

// Value returns the cell at (row, col); absent cells read as null.
func (t *Table) Value(row, col int) (record.Value, error) {
	r, err := t.Row(row)
	if err != nil {
		return record.Value{}, err
	}
	c, err := t.Column(col)
	if err != nil {
		return record.Value{}, err
	}
	v, _ := r.Get(c.Name)
	return v, nil
}

// Clone deep-copies the table. Row identities are preserved.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: t.Columns(),
		index:   make(map[string]int, len(t.index)),
		rows:    make([]*Row, len(t.rows)),
		nextID:  t.nextID,
		typed:   t.typed,
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i, r := range t.rows {
		out.rows[i] = r.clone()
	}
	return out
}

// view returns a table with the same columns over the given rows. Rows are
// shared, not copied, so edits through the view reach the source table.
func (t *Table) view(rows []*Row) *Table {
	out := &Table{
		columns: t.Columns(),
		index:   make(map[string]int, len(t.index)),
		rows:    rows,
		nextID:  t.nextID,
		typed:   t.typed,
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	return out
}

// reorder places lead columns first and trail columns last, each group in
// the given order, and keeps every other column in its current order.
// Names not present in the table are ignored.
func (t *Table) reorder(lead, trail []string) {
	pinned := make(map[string]bool, len(lead)+len(trail))
	for _, n := range lead {
		pinned[n] = true
	}
	for _, n := range trail {
		pinned[n] = true
	}

	cols := make([]Column, 0, len(t.columns))
	for _, n := range lead {
		if i, ok := t.index[n]; ok {
			cols = append(cols, t.columns[i])
		}
	}
	for _, c := range t.columns {
		if !pinned[c.Name] {
			cols = append(cols, c)
		}
	}
	for _, n := range trail {
		if i, ok := t.index[n]; ok {
			cols = append(cols, t.columns[i])
		}
	}

	t.columns = cols
	for i, c := range cols {
		t.index[c.Name] = i
	}
}
