package table

import (
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Builder accumulates rows that may be missing cells. Build materialises
// every missing cell as NA, so the finished table is always complete.
type Builder struct {
	columns []string
	index   map[string]int
	rows    []map[int]Value
}

// NewBuilder starts a table with the given columns.
func NewBuilder(columns ...string) (*Builder, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: %q", internalerr.ErrDuplicateColumn, c)
		}
		index[c] = i
	}
	return &Builder{columns: append([]string(nil), columns...), index: index}, nil
}

// Add appends a row given by column name.
func (b *Builder) Add(rec map[string]Value) error {
	row := make(map[int]Value, len(rec))
	for c, v := range rec {
		j, ok := b.index[c]
		if !ok {
			return fmt.Errorf("%w: %q", internalerr.ErrUnknownColumn, c)
		}
		row[j] = v
	}
	b.rows = append(b.rows, row)
	return nil
}

// AddValues appends a positional row. Short rows are padded later,
// long rows are rejected.
func (b *Builder) AddValues(values ...Value) error {
	if len(values) > len(b.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(values), len(b.columns))
	}
	row := make(map[int]Value, len(values))
	for j, v := range values {
		row[j] = v
	}
	b.rows = append(b.rows, row)
	return nil
}

// Len returns the number of rows added so far.
func (b *Builder) Len() int { return len(b.rows) }

// Build returns the finished table.
func (b *Builder) Build() *Table {
	t := &Table{
		columns: append([]string(nil), b.columns...),
		index:   make(map[string]int, len(b.index)),
		rows:    make([]Row, len(b.rows)),
	}
	for c, j := range b.index {
		t.index[c] = j
	}
	for i, partial := range b.rows {
		row := make(Row, len(b.columns))
		for j := range row {
			if v, ok := partial[j]; ok {
				row[j] = v
			} else {
				row[j] = NA
			}
		}
		t.rows[i] = row
	}
	return t
}
