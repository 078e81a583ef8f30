package render

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// CSVRenderer writes RFC 4180 CSV with a header row.
type CSVRenderer struct{}

func (r *CSVRenderer) ContentType() string { return "text/csv" }
func (r *CSVRenderer) Ext() string         { return "csv" }

func (r *CSVRenderer) Render(ctx context.Context, columns []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("render: csv header: %w", err)
	}
	for i, row := range rows {
		// csv.Writer buffers internally; check for cancellation between rows
		// so a timed-out export stops burning CPU.
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("render: csv row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render: csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
