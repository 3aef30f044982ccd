package generative

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/tabsense/pkg/tabsense/csvio"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// maxSummaryRows caps how much of a summary table goes into the prompt.
const maxSummaryRows = 200

const summaryPrompt = `You are preparing an executive summary for a feedback dashboard.
The CSV below has one row per %s with enrichment aggregates (row counts, average sentiment score from 0 to 1, label counts and tag counts).

%s
Write three to five short bullet points highlighting the strongest and weakest groups, notable tags and anything that needs attention. Use only the numbers given.`

// Summarize asks g for an executive summary of an aggregate table keyed by
// idColumn.
func Summarize(ctx context.Context, g Generator, summary *table.Table, idColumn string) (string, error) {
	if summary == nil || summary.Len() == 0 {
		return "", fmt.Errorf("%w: nothing to summarise", internalerr.ErrEmptySelection)
	}
	data, err := csvio.Export(summary.Head(maxSummaryRows))
	if err != nil {
		return "", err
	}
	out, err := g.Generate(ctx, fmt.Sprintf(summaryPrompt, idColumn, data))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty summary", internalerr.ErrResponseParse)
	}
	return out, nil
}
