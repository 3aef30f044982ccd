// Package table holds the pipeline's uniform data-interchange type: an
// ordered list of unique column names plus rows of typed cells.
//
// Tables are values. Every stage returns a new Table and leaves its input
// untouched, so a stage can always be re-run on the same input.
package table

import (
	"encoding/json"
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Row is one record, positionally aligned with the table's columns.
type Row []Value

// Table is an ordered set of columns and rows. Every row has exactly one
// cell per column.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New builds a table from complete rows. Column names must be unique and
// every row must have exactly len(columns) cells.
func New(columns []string, rows []Row) (*Table, error) {
	t, err := empty(columns)
	if err != nil {
		return nil, err
	}
	t.rows = make([]Row, 0, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(r), len(columns))
		}
		t.rows = append(t.rows, append(Row(nil), r...))
	}
	return t, nil
}

func empty(columns []string) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: %q", internalerr.ErrDuplicateColumn, c)
		}
		index[c] = i
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Index returns the position of a column.
func (t *Table) Index(column string) (int, bool) {
	i, ok := t.index[column]
	return i, ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	return append(Row(nil), t.rows[i]...)
}

// Cell returns the value of a column in row i.
func (t *Table) Cell(i int, column string) (Value, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return Value{}, false
	}
	return t.rows[i][j], true
}

// Column returns a copy of every cell in a column.
func (t *Table) Column(column string) ([]Value, error) {
	j, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("%w: %q", internalerr.ErrUnknownColumn, column)
	}
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Record returns row i as a column-name keyed map.
func (t *Table) Record(i int) map[string]Value {
	rec := make(map[string]Value, len(t.columns))
	for j, c := range t.columns {
		rec[c] = t.rows[i][j]
	}
	return rec
}

// Head returns a table with at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.rows) {
		n = len(t.rows)
	}
	out, _ := empty(t.columns)
	out.rows = make([]Row, n)
	for i := 0; i < n; i++ {
		out.rows[i] = t.Row(i)
	}
	return out
}

// WithColumns returns a new table with extra columns. cells[i] holds the
// new cells for row i, aligned with names. A name that already exists is
// replaced in place, so re-running a stage never duplicates its columns.
func (t *Table) WithColumns(names []string, cells []Row) (*Table, error) {
	if len(cells) != len(t.rows) {
		return nil, fmt.Errorf("got cells for %d rows, table has %d", len(cells), len(t.rows))
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %q", internalerr.ErrDuplicateColumn, n)
		}
		seen[n] = struct{}{}
	}

	columns := t.Columns()
	slot := make([]int, len(names))
	for k, n := range names {
		if j, ok := t.index[n]; ok {
			slot[k] = j
			continue
		}
		slot[k] = len(columns)
		columns = append(columns, n)
	}

	out, err := empty(columns)
	if err != nil {
		return nil, err
	}
	out.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		if len(cells[i]) != len(names) {
			return nil, fmt.Errorf("row %d has %d new cells, want %d", i, len(cells[i]), len(names))
		}
		row := make(Row, len(columns))
		copy(row, r)
		for k, v := range cells[i] {
			row[slot[k]] = v
		}
		out.rows[i] = row
	}
	return out, nil
}

type tableJSON struct {
	Columns []string           `json:"columns"`
	Rows    []map[string]Value `json:"rows"`
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [{...}]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{Columns: t.columns, Rows: make([]map[string]Value, len(t.rows))}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	for i := range t.rows {
		out.Rows[i] = t.Record(i)
	}
	return json.Marshal(out)
}
