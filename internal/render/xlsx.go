package render

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXRenderer writes an Office Open XML workbook with a single sheet.
type XLSXRenderer struct{}

func (r *XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *XLSXRenderer) Ext() string { return "xlsx" }

func (r *XLSXRenderer) Render(ctx context.Context, columns []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, columns); err != nil {
		return nil, fmt.Errorf("render: xlsx header: %w", err)
	}
	for i, row := range rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := setRow(f, i+2, row); err != nil {
			return nil, fmt.Errorf("render: xlsx row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render: xlsx serialize: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(xlsxSheet, cell, &cells)
}
