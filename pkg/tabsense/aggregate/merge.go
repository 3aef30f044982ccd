package aggregate

import (
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Merge inner-joins two tables on id. The result has one row per left row
// whose identifier also appears on the right, in left order; identifiers
// found on one side only are dropped. Columns are id, the other left
// columns, then the other right columns. When the right side repeats an
// identifier its first row is used.
func Merge(left, right *table.Table, id string) (*table.Table, error) {
	if !left.Has(id) || !right.Has(id) {
		return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingIdentifier, id)
	}

	leftCols := without(left.Columns(), id)
	rightCols := without(right.Columns(), id)
	columns := append(append([]string{id}, leftCols...), rightCols...)

	rightIDs, _ := right.Column(id)
	byID := make(map[string]int, len(rightIDs))
	for i, v := range rightIDs {
		if _, seen := byID[v.String()]; !seen {
			byID[v.String()] = i
		}
	}

	var rows []table.Row
	for i := 0; i < left.Len(); i++ {
		key, _ := left.Cell(i, id)
		j, ok := byID[key.String()]
		if !ok {
			continue
		}
		row := table.Row{key}
		for _, c := range leftCols {
			v, _ := left.Cell(i, c)
			row = append(row, v)
		}
		for _, c := range rightCols {
			v, _ := right.Cell(j, c)
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	out, err := table.New(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return out, nil
}

func without(columns []string, drop string) []string {
	out := columns[:0]
	for _, c := range columns {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

// SentimentSummary aggregates a sentiment stage: rows, mean score and the
// label distribution per identifier.
func SentimentSummary(t *table.Table, id, labelColumn, scoreColumn string) (*table.Table, error) {
	scores, err := Aggregate(t, id, []Measure{{Column: scoreColumn, Func: Mean}})
	if err != nil {
		return nil, err
	}
	dist, err := Distribution(t, id, labelColumn, enrich.Labels)
	if err != nil {
		return nil, err
	}
	return Merge(scores, dist, id)
}

// TagSummary counts rows per tag and identifier. It carries no RowsColumn
// so it can be merged with a SentimentSummary.
func TagSummary(t *table.Table, id string, tags []string) (*table.Table, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no tags to summarise", internalerr.ErrEmptySelection)
	}
	measures := make([]Measure, len(tags))
	for i, tag := range tags {
		measures[i] = Measure{Column: tag, Func: Sum}
	}
	counts, err := Aggregate(t, id, measures)
	if err != nil {
		return nil, err
	}
	return counts.Select(append([]string{id}, tags...)...)
}
