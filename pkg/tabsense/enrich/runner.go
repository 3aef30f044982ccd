package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Runner defaults.
const (
	DefaultConcurrency = 8
	DefaultTimeout     = 20 * time.Second
)

// Runner applies an Enricher to every row of a table.
type Runner struct {
	// Concurrency bounds in-flight Classify calls. Zero means DefaultConcurrency.
	Concurrency int
	// Timeout bounds each Classify call. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// RowError records why one row got sentinel cells.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%v: row %d: %v", internalerr.ErrRowEnrichment, e.Row, e.Err)
}

// Unwrap exposes both ErrRowEnrichment and the underlying cause.
func (e *RowError) Unwrap() []error {
	return []error{internalerr.ErrRowEnrichment, e.Err}
}

// MarshalJSON encodes the row and the error text.
func (e *RowError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Row   int    `json:"row"`
		Error string `json:"error"`
	}{e.Row, e.Err.Error()})
}

// Report summarises one Run.
type Report struct {
	RunID    string      `json:"run_id"`
	Enricher string      `json:"enricher"`
	Column   string      `json:"column"`
	Rows     int         `json:"rows"`
	Failed   []*RowError `json:"failed"`

	// ModelLoading counts failures caused by a remote model that was still
	// loading; those rows are worth retrying.
	ModelLoading int           `json:"model_loading"`
	Duration     time.Duration `json:"duration_ns"`
}

// Succeeded returns the number of rows that got real results.
func (r *Report) Succeeded() int { return r.Rows - len(r.Failed) }

type outcome struct {
	cells table.Row
	err   error
}

// Run classifies the text in inputColumn for every row and returns a new
// table with the layout's columns appended (or replaced, on a re-run).
//
// Only preconditions fail the whole run: a missing input column, a layout
// without columns, a layout column named like the input or a nil enricher. Row failures are reported and the
// row receives the layout's sentinel cells. Run waits for every call to
// finish; one failing row never cancels another.
func (r *Runner) Run(ctx context.Context, t *table.Table, inputColumn string, e Enricher, layout Layout) (*table.Table, *Report, error) {
	if t == nil || e == nil || layout == nil {
		return nil, nil, fmt.Errorf("%w: run needs a table, an enricher and a layout", internalerr.ErrInvalidConfig)
	}
	idx, ok := t.Index(inputColumn)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", internalerr.ErrUnknownColumn, inputColumn)
	}
	columns := layout.Columns()
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("%w: layout has no output columns", internalerr.ErrEmptySelection)
	}
	for _, c := range columns {
		if c == inputColumn {
			return nil, nil, fmt.Errorf("%w: output column %q would overwrite the input", internalerr.ErrDuplicateColumn, c)
		}
	}

	start := time.Now()
	report := &Report{
		RunID:    ulid.Make().String(),
		Enricher: e.Name(),
		Column:   inputColumn,
		Rows:     t.Len(),
	}
	log := r.logger().With(zap.String("run_id", report.RunID), zap.String("enricher", report.Enricher))

	outcomes := make([]outcome, t.Len())
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency())
	for i := 0; i < t.Len(); i++ {
		cell, _ := t.Cell(i, inputColumn)
		g.Go(func() error {
			outcomes[i] = r.classify(ctx, e, layout, cell)
			return nil
		})
	}
	_ = g.Wait()

	cells := make([]table.Row, len(outcomes))
	for i, o := range outcomes {
		if o.err == nil {
			cells[i] = o.cells
			continue
		}
		cells[i] = layout.Sentinel()
		report.Failed = append(report.Failed, &RowError{Row: i, Err: o.err})
		if errors.Is(o.err, internalerr.ErrModelLoading) {
			report.ModelLoading++
		}
		log.Debug("row enrichment failed", zap.Int("row", i), zap.Error(o.err))
	}

	out, err := t.WithColumns(columns, cells)
	if err != nil {
		return nil, nil, err
	}
	report.Duration = time.Since(start)

	log.Info("enrichment run complete",
		zap.String("column", inputColumn),
		zap.Int("input_index", idx),
		zap.Int("rows", report.Rows),
		zap.Int("failed", len(report.Failed)),
		zap.Int("model_loading", report.ModelLoading),
		zap.Duration("duration", report.Duration))
	return out, report, nil
}

func (r *Runner) classify(ctx context.Context, e Enricher, layout Layout, cell table.Value) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			o = outcome{err: fmt.Errorf("enricher panicked: %v", p)}
		}
	}()

	if cell.IsSentinel() {
		return outcome{err: fmt.Errorf("cell holds the %q placeholder, not text", cell.String())}
	}
	text, ok := cell.Text()
	if !ok {
		return outcome{err: fmt.Errorf("cell is a %s, not text", cell.Kind())}
	}
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	res, err := e.Classify(cctx, text)
	if err != nil {
		return outcome{err: err}
	}
	cells, err := layout.Cells(res)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{cells: cells}
}

func (r *Runner) concurrency() int {
	if r.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return r.Concurrency
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
