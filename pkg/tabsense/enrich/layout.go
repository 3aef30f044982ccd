package enrich

import (
	"fmt"
	"math"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Default sentiment column names.
const (
	DefaultLabelColumn = "sentiment"
	DefaultScoreColumn = "sentimentScore"
)

// Layout decides which columns a stage appends, how a Result fills them
// and what a failed row gets instead.
type Layout interface {
	Columns() []string
	Cells(res Result) (table.Row, error)
	Sentinel() table.Row
}

type sentimentLayout struct {
	label, score string
}

// SentimentLayout writes the label and the score into two columns. Empty
// names fall back to DefaultLabelColumn and DefaultScoreColumn. Failed rows
// get Unknown and 0.
func SentimentLayout(labelColumn, scoreColumn string) Layout {
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}
	if scoreColumn == "" {
		scoreColumn = DefaultScoreColumn
	}
	return sentimentLayout{label: labelColumn, score: scoreColumn}
}

func (l sentimentLayout) Columns() []string { return []string{l.label, l.score} }

func (l sentimentLayout) Cells(res Result) (table.Row, error) {
	if res.Label == "" {
		return nil, fmt.Errorf("%w: empty label", internalerr.ErrResponseParse)
	}
	if math.IsNaN(res.Score) || res.Score < 0 || res.Score > 1 {
		return nil, fmt.Errorf("%w: score %v outside [0,1]", internalerr.ErrResponseParse, res.Score)
	}
	return table.Row{table.String(res.Label), table.Number(res.Score)}, nil
}

func (l sentimentLayout) Sentinel() table.Row {
	return table.Row{table.Unknown, table.Number(0)}
}

type tagLayout struct {
	tags []string
}

// TagLayout writes one boolean column per tag, named after the tag.
// Failed rows get Unknown in every tag column.
func TagLayout(tags []string) Layout {
	return tagLayout{tags: append([]string(nil), tags...)}
}

func (l tagLayout) Columns() []string { return append([]string(nil), l.tags...) }

func (l tagLayout) Cells(res Result) (table.Row, error) {
	row := make(table.Row, len(l.tags))
	for i, tag := range l.tags {
		present, ok := res.Tags[tag]
		if !ok {
			return nil, fmt.Errorf("%w: no verdict for tag %q", internalerr.ErrResponseParse, tag)
		}
		row[i] = table.Bool(present)
	}
	return row, nil
}

func (l tagLayout) Sentinel() table.Row {
	row := make(table.Row, len(l.tags))
	for i := range row {
		row[i] = table.Unknown
	}
	return row
}
