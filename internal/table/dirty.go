package table

import "sort"

// DirtyTracker records edited cells by row identity and column name. A row
// is dirty exactly when it has at least one dirty cell.
type DirtyTracker struct {
	cells map[RowID]map[string]struct{}
}

func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{cells: make(map[RowID]map[string]struct{})}
}

func (d *DirtyTracker) Mark(id RowID, column string) {
	cols, ok := d.cells[id]
	if !ok {
		cols = make(map[string]struct{})
		d.cells[id] = cols
	}
	cols[column] = struct{}{}
}

// Forget drops every mark on a row.
func (d *DirtyTracker) Forget(id RowID) {
	delete(d.cells, id)
}

func (d *DirtyTracker) IsCellDirty(id RowID, column string) bool {
	_, ok := d.cells[id][column]
	return ok
}

func (d *DirtyTracker) IsRowDirty(id RowID) bool {
	return len(d.cells[id]) > 0
}

// Rows returns the dirty row identities in ascending order.
func (d *DirtyTracker) Rows() []RowID {
	ids := make([]RowID, 0, len(d.cells))
	for id := range d.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Columns returns the dirty column names of one row, sorted.
func (d *DirtyTracker) Columns(id RowID) []string {
	cols := make([]string, 0, len(d.cells[id]))
	for c := range d.cells[id] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (d *DirtyTracker) Len() int { return len(d.cells) }

func (d *DirtyTracker) Clear() {
	d.cells = make(map[RowID]map[string]struct{})
}
