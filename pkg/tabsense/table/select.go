package table

import (
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// Select projects the table onto the given columns, in the order given.
// Row count and row order are unchanged. Columns are looked up by name,
// never by position, because earlier stages may have added or moved them.
func (t *Table) Select(columns ...string) (*Table, error) {
	if len(columns) == 0 {
		return nil, internalerr.ErrEmptySelection
	}
	src := make([]int, len(columns))
	for k, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("select: %w: %q", internalerr.ErrUnknownColumn, c)
		}
		src[k] = j
	}

	out, err := empty(columns)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out.rows = make([]Row, len(t.rows))
	for i, r := range t.rows {
		row := make(Row, len(src))
		for k, j := range src {
			row[k] = r[j]
		}
		out.rows[i] = row
	}
	return out, nil
}
