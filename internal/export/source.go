package export

import (
	"context"
	"fmt"
)

// RowSource supplies the ordered dataset for one export. The row count is
// known up front; filtering and sorting happened upstream.
type RowSource interface {
	// Count returns the total number of rows.
	Count() int

	// Rows returns the inclusive 1-based window [start, end].
	Rows(ctx context.Context, start, end int) ([][]string, error)
}

// SliceSource is a RowSource over an in-memory row slice. The API layer
// builds one from the request body; the queue worker rebuilds one from the
// task payload.
type SliceSource struct {
	rows [][]string
}

func NewSliceSource(rows [][]string) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) Count() int { return len(s.rows) }

func (s *SliceSource) Rows(_ context.Context, start, end int) ([][]string, error) {
	if start < 1 || end > len(s.rows) || start > end {
		return nil, fmt.Errorf("export: row window [%d, %d] out of range (1..%d)", start, end, len(s.rows))
	}
	return s.rows[start-1 : end], nil
}
