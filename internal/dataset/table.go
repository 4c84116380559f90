// Package dataset holds the in-memory table used by the preparation pipeline
// and the trainer, plus delimited file I/O and numeric coercion helpers.
package dataset

import (
	"fmt"
	"math"
)

// Table is an ordered set of named string columns stored row-major.
// An empty (or NA-like) cell is a missing value.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	return t
}

func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }
func (t *Table) Len() int          { return len(t.rows) }
func (t *Table) Width() int        { return len(t.columns) }

func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *Table) Index(col string) (int, bool) {
	i, ok := t.index[col]
	return i, ok
}

// Row returns the i-th row. Callers must not modify it.
func (t *Table) Row(i int) []string { return t.rows[i] }

// Value returns the cell at row i, column col, or "" when the column is absent.
func (t *Table) Value(i int, col string) string {
	j, ok := t.index[col]
	if !ok {
		return ""
	}
	return t.rows[i][j]
}

// Set overwrites a cell. Unknown columns are ignored.
func (t *Table) Set(i int, col, v string) {
	if j, ok := t.index[col]; ok {
		t.rows[i][j] = v
	}
}

// AppendRow adds a row, padding short rows with missing cells and
// rejecting rows wider than the header.
func (t *Table) AppendRow(values []string) error {
	if len(values) > len(t.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(values), len(t.columns))
	}
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// Column returns a copy of a column's cells.
func (t *Table) Column(col string) ([]string, error) {
	j, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("column %q not found", col)
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Floats parses a column with parse; cells that fail become NaN.
func (t *Table) Floats(col string, parse func(string) (float64, bool)) ([]float64, error) {
	j, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("column %q not found", col)
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		if v, ok := parse(r[j]); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// AddColumn appends a column. values must have one entry per row.
func (t *Table) AddColumn(name string, values []string) error {
	if t.Has(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], values[i])
	}
	return nil
}

// DropColumns removes the named columns and returns the ones that existed.
func (t *Table) DropColumns(cols ...string) []string {
	drop := make(map[string]bool, len(cols))
	var dropped []string
	for _, c := range cols {
		if t.Has(c) && !drop[c] {
			drop[c] = true
			dropped = append(dropped, c)
		}
	}
	if len(dropped) == 0 {
		return nil
	}

	keep := make([]int, 0, len(t.columns))
	newCols := make([]string, 0, len(t.columns))
	for j, c := range t.columns {
		if !drop[c] {
			keep = append(keep, j)
			newCols = append(newCols, c)
		}
	}
	for i, r := range t.rows {
		nr := make([]string, len(keep))
		for k, j := range keep {
			nr[k] = r[j]
		}
		t.rows[i] = nr
	}
	t.columns = newCols
	t.reindex()
	return dropped
}

// RenameColumn renames from to to. Renaming onto an existing column fails.
func (t *Table) RenameColumn(from, to string) error {
	j, ok := t.index[from]
	if !ok {
		return fmt.Errorf("column %q not found", from)
	}
	if from == to {
		return nil
	}
	if t.Has(to) {
		return fmt.Errorf("column %q already exists", to)
	}
	t.columns[j] = to
	t.reindex()
	return nil
}

// Filter returns a new table holding copies of the rows for which keep is true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := New(t.columns...)
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string(nil), r...))
		}
	}
	return out
}

func (t *Table) Clone() *Table {
	return t.Filter(func(int) bool { return true })
}

// Missing counts missing cells, optionally restricted to some columns.
func (t *Table) Missing(cols ...string) int {
	idx := make([]int, 0, len(t.columns))
	if len(cols) == 0 {
		for j := range t.columns {
			idx = append(idx, j)
		}
	} else {
		for _, c := range cols {
			if j, ok := t.index[c]; ok {
				idx = append(idx, j)
			}
		}
	}

	n := 0
	for _, r := range t.rows {
		for _, j := range idx {
			if IsMissing(r[j]) {
				n++
			}
		}
	}
	return n
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}
