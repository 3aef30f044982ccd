// Package aggregate groups enriched tables by an identifier column and
// joins per-stage summaries into one table for the dashboard.
//
// Summary tables are built fresh on every call and are never fed back into
// the enrichment pipeline.
package aggregate

import (
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// RowsColumn holds the number of input rows per identifier.
const RowsColumn = "rows"

// Func is an aggregation function.
type Func int

const (
	Mean Func = iota
	Sum
	// Count counts cells that are not sentinels.
	Count
)

func (f Func) String() string {
	switch f {
	case Sum:
		return "sum"
	case Count:
		return "count"
	default:
		return "mean"
	}
}

// Measure aggregates one column. As names the output column and defaults
// to Column.
type Measure struct {
	Column string
	Func   Func
	As     string
}

func (m Measure) name() string {
	if m.As != "" {
		return m.As
	}
	return m.Column
}

// Infer picks a Measure per column from the cells it holds: Sum for
// boolean columns, Mean for numeric ones and Count for anything else.
// Sentinel cells are ignored when deciding.
func Infer(t *table.Table, columns []string) ([]Measure, error) {
	measures := make([]Measure, 0, len(columns))
	for _, c := range columns {
		values, err := t.Column(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingSentimentColumn, c)
		}
		var bools, numbers, others int
		for _, v := range values {
			switch {
			case v.IsSentinel():
			case v.Kind() == table.KindBool:
				bools++
			case v.Kind() == table.KindNumber:
				numbers++
			default:
				others++
			}
		}
		f := Mean
		switch {
		case others > 0:
			f = Count
		case numbers == 0:
			f = Sum
		}
		measures = append(measures, Measure{Column: c, Func: f})
	}
	return measures, nil
}

// group is one identifier value and the rows that carry it, in
// first-appearance order.
type group struct {
	id   table.Value
	rows []int
}

func groupBy(t *table.Table, id string) ([]*group, error) {
	ids, err := t.Column(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingIdentifier, id)
	}
	var groups []*group
	index := make(map[string]*group)
	for i, v := range ids {
		key := v.String()
		g, ok := index[key]
		if !ok {
			g = &group{id: v}
			index[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
	}
	return groups, nil
}

// Aggregate returns one row per distinct identifier (in first-appearance
// order) with a RowsColumn count and one column per measure. Non-numeric
// cells, sentinels included, count as 0 for Mean and Sum; booleans count
// as 1 or 0.
func Aggregate(t *table.Table, id string, measures []Measure) (*table.Table, error) {
	groups, err := groupBy(t, id)
	if err != nil {
		return nil, err
	}
	columns := []string{id, RowsColumn}
	src := make([][]table.Value, len(measures))
	for k, m := range measures {
		values, err := t.Column(m.Column)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingSentimentColumn, m.Column)
		}
		src[k] = values
		columns = append(columns, m.name())
	}

	rows := make([]table.Row, len(groups))
	for gi, g := range groups {
		row := table.Row{g.id, table.Number(float64(len(g.rows)))}
		for k, m := range measures {
			row = append(row, table.Number(apply(m.Func, src[k], g.rows)))
		}
		rows[gi] = row
	}
	out, err := table.New(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return out, nil
}

func apply(f Func, values []table.Value, rows []int) float64 {
	var sum float64
	var n int
	for _, i := range rows {
		v := values[i]
		sum += v.Measure()
		if !v.IsSentinel() && v.String() != "" {
			n++
		}
	}
	switch f {
	case Sum:
		return sum
	case Count:
		return float64(n)
	default:
		if len(rows) == 0 {
			return 0
		}
		return sum / float64(len(rows))
	}
}
