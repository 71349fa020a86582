package ingest

import (
	"bytes"
	"fmt"
	"strings"

	xls "github.com/extrame/xls"
)

// Legacy .xls exports (1C, old supplier software) are usually cp1251 but
// occasionally UTF-8 or KOI8-R; try in that order.
var xlsCharsets = []string{"windows-1251", "utf-8", "koi8-r"}

func parseXLS(data []byte, opts Options) (*Table, error) {
	var (
		wb      *xls.WorkBook
		lastErr error
	)
	for _, cs := range xlsCharsets {
		b, err := xls.OpenReader(bytes.NewReader(data), cs)
		if err == nil && b != nil {
			wb = b
			lastErr = nil
			break
		}
		lastErr = err
	}
	if wb == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("could not open workbook")
		}
		return nil, fmt.Errorf("open xls: %w", lastErr)
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= wb.NumSheets() {
		return nil, fmt.Errorf("%w: index %d of %d sheets", ErrNoSheet, opts.SheetIndex, wb.NumSheets())
	}
	sheet := wb.GetSheet(opts.SheetIndex)
	if sheet == nil {
		return nil, ErrNoSheet
	}

	names := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		if s := wb.GetSheet(i); s != nil {
			names = append(names, s.Name)
		}
	}

	// Row.LastCol lies on sparse sheets; fix the table width by probing for
	// the rightmost non-empty cell first.
	width := xlsWidth(sheet)
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		cols := make([]string, width)
		if row != nil {
			for j := 0; j < width; j++ {
				cols[j] = strings.TrimSpace(row.Col(j))
			}
		}
		rows = append(rows, cols)
	}

	return finishTable(rows, opts, opts.SheetIndex, names)
}

func xlsWidth(sheet *xls.WorkSheet) int {
	const probeMax = 256
	width := 1
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		for j := 0; j < probeMax; j++ {
			if strings.TrimSpace(row.Col(j)) != "" && j+1 > width {
				width = j + 1
			}
		}
	}
	return width
}
