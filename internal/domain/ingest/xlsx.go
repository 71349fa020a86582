package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

func parseXLSX(data []byte, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(sheets) {
		return nil, fmt.Errorf("%w: index %d of %d sheets", ErrNoSheet, opts.SheetIndex, len(sheets))
	}
	sheet := sheets[opts.SheetIndex]

	merged, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("inspect merge cells: %w", err)
	}
	if len(merged) > 0 {
		return nil, fmt.Errorf("%w: %s spans %s", ErrMergedCells, sheet, merged[0].GetStartAxis())
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	return finishTable(rows, opts, opts.SheetIndex, sheets)
}
