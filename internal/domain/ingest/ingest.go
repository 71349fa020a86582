// Package ingest parses uploaded or pasted price-list documents into a
// rectangular row matrix. Structural complexity the importer cannot map
// safely (merged cells, row/column spans) is rejected outright instead of
// guessed at.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// PreviewRows caps parsing for mapping-preview requests.
	PreviewRows = 100
	// MaxRows caps full parsing; a session never holds more raw rows.
	MaxRows = 50000
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file contains no rows")
	ErrNoSheet         = errors.New("requested sheet does not exist")
	ErrMergedCells     = errors.New("sheet contains merged cells")
	ErrComplexTable    = errors.New("table uses rowspan/colspan")
)

// Table is the parsed row matrix plus what was detected along the way.
type Table struct {
	Rows       [][]string
	HeaderRow  int // 0-based index into Rows
	SheetIndex int
	SheetNames []string
	Truncated  bool
}

// Options steers parsing. Zero value means: first sheet, auto-detected
// header row and delimiter, full row cap.
type Options struct {
	SheetIndex int
	HeaderRow  int  // 0-based; negative requests auto-detection
	Delimiter  rune // 0 requests auto-detection (delimited text only)
	Preview    bool
}

func (o Options) rowCap() int {
	if o.Preview {
		return PreviewRows
	}
	return MaxRows
}

// Parse dispatches on the declared filename extension.
func Parse(data []byte, filename string, opts Options) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(data, opts)
	case ".xls":
		return parseXLS(data, opts)
	case ".csv", ".tsv", ".txt":
		return parseDelimited(data, opts)
	case ".html", ".htm":
		return parseHTML(data, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
}

// ParsePasted handles clipboard content: an HTML fragment (spreadsheet
// copy-paste arrives as a table) or plain delimited text.
func ParsePasted(text string, opts Options) (*Table, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyFile
	}
	if strings.Contains(strings.ToLower(trimmed), "<table") {
		return parseHTML([]byte(trimmed), opts)
	}
	return parseDelimited([]byte(text), opts)
}

// ContentHash fingerprints the raw upload for duplicate detection.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func finishTable(rows [][]string, opts Options, sheetIdx int, sheetNames []string) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	truncated := false
	if limit := opts.rowCap(); len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}

	header := opts.HeaderRow
	if header < 0 {
		header = DetectHeaderRow(rows)
	}
	if header >= len(rows) {
		return nil, fmt.Errorf("header row %d beyond last row %d", header, len(rows)-1)
	}

	return &Table{
		Rows:       rows,
		HeaderRow:  header,
		SheetIndex: sheetIdx,
		SheetNames: sheetNames,
		Truncated:  truncated,
	}, nil
}
