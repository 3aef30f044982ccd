package aggregate

import (
	"fmt"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// UnknownLabel collects labels outside the requested set, failed rows
// included.
const UnknownLabel = "Unknown"

func withUnknown(labels []string) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		if l != UnknownLabel {
			out = append(out, l)
		}
	}
	return append(out, UnknownLabel)
}

// Distribution counts labels per identifier: one column per label plus
// UnknownLabel. This is the data behind a stacked bar chart.
func Distribution(t *table.Table, id, labelColumn string, labels []string) (*table.Table, error) {
	groups, err := groupBy(t, id)
	if err != nil {
		return nil, err
	}
	values, err := t.Column(labelColumn)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingSentimentColumn, labelColumn)
	}

	buckets := withUnknown(labels)
	pos := make(map[string]int, len(buckets))
	for k, l := range buckets {
		pos[l] = k
	}

	columns := append([]string{id}, buckets...)
	rows := make([]table.Row, len(groups))
	for gi, g := range groups {
		counts := make([]int, len(buckets))
		for _, i := range g.rows {
			k, ok := pos[values[i].String()]
			if !ok {
				k = pos[UnknownLabel]
			}
			counts[k]++
		}
		row := table.Row{g.id}
		for _, n := range counts {
			row = append(row, table.Number(float64(n)))
		}
		rows[gi] = row
	}
	out, err := table.New(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("distribution: %w", err)
	}
	return out, nil
}

// Totals counts labels over the whole table, one row per label plus
// UnknownLabel. This is the data behind a donut chart.
func Totals(t *table.Table, labelColumn string, labels []string) (*table.Table, error) {
	values, err := t.Column(labelColumn)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", internalerr.ErrMissingSentimentColumn, labelColumn)
	}
	buckets := withUnknown(labels)
	counts := make(map[string]int, len(buckets))
	for _, v := range values {
		l := v.String()
		if !contains(buckets, l) {
			l = UnknownLabel
		}
		counts[l]++
	}

	rows := make([]table.Row, len(buckets))
	for k, l := range buckets {
		rows[k] = table.Row{table.String(l), table.Number(float64(counts[l]))}
	}
	return table.New([]string{"label", "count"}, rows)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
