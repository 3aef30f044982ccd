// Package csvio converts between delimited text and tables.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Warning describes a row-level problem the parser recovered from.
type Warning struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

type options struct {
	delimiter rune
	maxRows   int
}

// Option configures Parse.
type Option func(*options)

// WithDelimiter sets the field delimiter (default ',').
func WithDelimiter(r rune) Option {
	return func(o *options) { o.delimiter = r }
}

// WithMaxRows stops reading after n data rows; 0 means unlimited.
func WithMaxRows(n int) Option {
	return func(o *options) { o.maxRows = n }
}

// ParseString parses delimited text held in memory.
func ParseString(text string, opts ...Option) (*table.Table, []Warning, error) {
	return Parse(strings.NewReader(text), opts...)
}

// Parse reads delimited text into a table. The first non-blank line is
// the header. Empty lines are skipped; a line of empty fields such as ","
// is a data row.
//
// Row faults never abort the parse: short rows are padded with N/A, long
// rows are truncated and undecodable rows are skipped. Each such fault is
// returned as a Warning. Parse fails with ErrParse only when there is no
// header or no data row.
func Parse(r io.Reader, opts ...Option) (*table.Table, []Warning, error) {
	o := options{delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}

	cr := csv.NewReader(r)
	cr.Comma = o.delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	var (
		warnings []Warning
		header   []string
		b        *table.Builder
	)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				// reader failures repeat, only syntax errors are per row
				return nil, warnings, fmt.Errorf("read csv: %w", err)
			}
			warnings = append(warnings, Warning{Line: perr.StartLine, Reason: fmt.Sprintf("skipped undecodable row: %v", err)})
			continue
		}
		line, _ := cr.FieldPos(0)

		if header == nil {
			if blank(record) {
				continue
			}
			var hw []Warning
			header, hw = normalizeHeader(record, line)
			warnings = append(warnings, hw...)
			if b, err = table.NewBuilder(header...); err != nil {
				return nil, warnings, fmt.Errorf("%w: %v", internalerr.ErrParse, err)
			}
			continue
		}

		switch {
		case len(record) < len(header):
			warnings = append(warnings, Warning{Line: line, Reason: fmt.Sprintf("%d of %d fields, padded with N/A", len(record), len(header))})
		case len(record) > len(header):
			warnings = append(warnings, Warning{Line: line, Reason: fmt.Sprintf("%d of %d fields, extra fields dropped", len(record), len(header))})
			record = record[:len(header)]
		}

		values := make([]table.Value, len(record))
		for j, cell := range record {
			values[j] = table.Parse(cell)
		}
		if err := b.AddValues(values...); err != nil {
			return nil, warnings, fmt.Errorf("%w: line %d: %v", internalerr.ErrParse, line, err)
		}
		if o.maxRows > 0 && b.Len() >= o.maxRows {
			break
		}
	}

	if header == nil {
		return nil, warnings, fmt.Errorf("%w: no header row", internalerr.ErrParse)
	}
	if b.Len() == 0 {
		return nil, warnings, fmt.Errorf("%w: no data rows after header", internalerr.ErrParse)
	}
	return b.Build(), warnings, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// normalizeHeader trims names, drops a UTF-8 BOM, names blank columns and
// makes duplicates unique with numeric suffixes.
func normalizeHeader(record []string, line int) ([]string, []Warning) {
	var warnings []Warning
	names := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for j, raw := range record {
		name := strings.TrimSpace(raw)
		if j == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		}
		if name == "" {
			name = "column_" + strconv.Itoa(j+1)
			warnings = append(warnings, Warning{Line: line, Reason: fmt.Sprintf("blank header %d named %q", j+1, name)})
		}
		if n, dup := seen[name]; dup {
			renamed := name
			for k := n + 1; ; k++ {
				renamed = name + "_" + strconv.Itoa(k)
				if _, taken := seen[renamed]; !taken {
					seen[name] = k
					break
				}
			}
			warnings = append(warnings, Warning{Line: line, Reason: fmt.Sprintf("duplicate header %q renamed %q", name, renamed)})
			name = renamed
		}
		seen[name] = 1
		names[j] = name
	}
	return names, warnings
}
