package csvio

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Write serialises a table as comma-delimited text: a header line, then
// one line per row with every cell rendered by Value.String.
func Write(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := writeRecord(w, cw, t.Columns()); err != nil {
		return err
	}
	record := make([]string, t.Width())
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			record[j] = v.String()
		}
		if err := writeRecord(w, cw, record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeRecord writes a lone empty field as "" since csv.Writer would emit
// an empty line, which readers skip.
func writeRecord(w io.Writer, cw *csv.Writer, record []string) error {
	if len(record) != 1 || record[0] != "" {
		return cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// Export returns the table as CSV bytes.
func Export(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
