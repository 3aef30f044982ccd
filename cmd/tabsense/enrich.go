package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/tabsense/pkg/tabsense"
	"github.com/cognicore/tabsense/pkg/tabsense/csvio"
	"github.com/cognicore/tabsense/pkg/tabsense/enrich"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

type enrichOptions struct {
	in         string
	out        string
	columns    []string
	column     string
	mode       string
	tags       []string
	id         string
	summaryOut string
}

func newEnrichCmd(a *app) *cobra.Command {
	var o enrichOptions
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Add sentiment (and optionally tag) columns to a CSV file",
		Example: `  tabsense enrich --in feedback.csv --column feedback --out enriched.csv
  tabsense enrich --in feedback.csv --column feedback --mode remote --tags Pricing,Support \
      --id team --summary-out summary.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEnrich(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "-", "input CSV file (- for stdin)")
	f.StringVar(&o.out, "out", "-", "output CSV file (- for stdout)")
	f.StringSliceVar(&o.columns, "select", nil, "keep only these columns before enriching")
	f.StringVar(&o.column, "column", "", "text column to enrich (required)")
	f.StringVar(&o.mode, "mode", string(tabsense.ModeRules), "sentiment mode (rules|remote|generative)")
	f.StringSliceVar(&o.tags, "tags", nil, "tags to detect with the generative model")
	f.StringVar(&o.id, "id", "", "identifier column to summarise by")
	f.StringVar(&o.summaryOut, "summary-out", "", "summary CSV file, required with --id")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func (a *app) runEnrich(cmd *cobra.Command, o enrichOptions) error {
	if o.id != "" && o.summaryOut == "" {
		return fmt.Errorf("%w: --summary-out is required with --id", internalerr.ErrInvalidConfig)
	}
	mode, err := tabsense.ParseMode(o.mode)
	if err != nil {
		return err
	}
	engine, err := a.engine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	in, err := openInput(cmd, o.in)
	if err != nil {
		return err
	}
	defer in.Close()

	ctx := cmd.Context()
	tbl, warnings, err := engine.Parse(in)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		a.logger.Warn("csv", zap.Int("line", w.Line), zap.String("reason", w.Reason))
	}
	if len(o.columns) > 0 {
		if tbl, err = engine.Select(tbl, o.columns...); err != nil {
			return err
		}
	}

	tbl, report, err := engine.Sentiment(ctx, tbl, o.column, mode)
	if err != nil {
		return err
	}
	printReport(cmd.ErrOrStderr(), "sentiment", report)

	var tags []string
	if len(o.tags) > 0 || a.cfg.TagsFile != "" {
		if tags, err = engine.ResolveTags(o.tags); err != nil {
			return err
		}
		if tbl, report, err = engine.Tags(ctx, tbl, o.column, tags); err != nil {
			return err
		}
		printReport(cmd.ErrOrStderr(), "tags", report)
	}

	data, err := engine.Export(tbl)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, o.out, data); err != nil {
		return err
	}

	if o.id == "" {
		return nil
	}
	sum, err := engine.Summarize(tbl, o.id, tags)
	if err != nil {
		return err
	}
	data, err = csvio.Export(sum.Table)
	if err != nil {
		return err
	}
	return writeOutput(cmd, o.summaryOut, data)
}

func printReport(w io.Writer, stage string, r *enrich.Report) {
	fmt.Fprintf(w, "%s: %d rows, %d failed (run %s, %s)\n", stage, r.Rows, len(r.Failed), r.RunID, r.Duration.Round(time.Millisecond))
	if r.ModelLoading > 0 {
		fmt.Fprintf(w, "  %d rows hit a loading model; re-run to retry them\n", r.ModelLoading)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  row %d: %v\n", f.Row+1, f.Err)
	}
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" || path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
