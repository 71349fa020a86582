package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func buildXLSX(t *testing.T, sheet string, cells map[string]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for axis, value := range cells {
		require.NoError(t, f.SetCellValue(sheet, axis, value))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	t.Run("reads rows from selected sheet", func(t *testing.T) {
		data := buildXLSX(t, "Прайс", map[string]string{
			"A1": "Наименование", "B1": "Цена", "C1": "Ед.",
			"A2": "Кромка ПВХ 19мм", "B2": "12,50", "C2": "м.п.",
		})

		table, err := Parse(data, "price.xlsx", Options{HeaderRow: -1})
		require.NoError(t, err)
		assert.Equal(t, 0, table.HeaderRow)
		assert.Equal(t, []string{"Прайс"}, table.SheetNames)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, "Кромка ПВХ 19мм", table.Rows[1][0])
	})

	t.Run("rejects merged cells", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "Наименование"))
		require.NoError(t, f.MergeCell("Sheet1", "A1", "B1"))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		_, err = Parse(buf.Bytes(), "price.xlsx", Options{HeaderRow: -1})
		assert.ErrorIs(t, err, ErrMergedCells)
	})

	t.Run("missing sheet index", func(t *testing.T) {
		data := buildXLSX(t, "Прайс", map[string]string{"A1": "x"})
		_, err := Parse(data, "price.xlsx", Options{SheetIndex: 3, HeaderRow: -1})
		assert.ErrorIs(t, err, ErrNoSheet)
	})
}

func TestParseDelimited(t *testing.T) {
	t.Run("semicolon csv", func(t *testing.T) {
		data := []byte("Наименование;Цена;Ед.\nКромка ПВХ;12,5;м.п.\n")
		table, err := Parse(data, "price.csv", Options{HeaderRow: -1})
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, []string{"Кромка ПВХ", "12,5", "м.п."}, table.Rows[1])
	})

	t.Run("tab separated", func(t *testing.T) {
		data := []byte("name\tprice\nEdge band\t10\n")
		table, err := Parse(data, "price.tsv", Options{HeaderRow: -1})
		require.NoError(t, err)
		assert.Equal(t, []string{"Edge band", "10"}, table.Rows[1])
	})

	t.Run("explicit delimiter override", func(t *testing.T) {
		data := []byte("a|b;c\n1|2;3\n")
		table, err := Parse(data, "price.csv", Options{HeaderRow: 0, Delimiter: '|'})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b;c"}, table.Rows[0])
	})

	t.Run("windows-1251 decoded transparently", func(t *testing.T) {
		enc := charmap.Windows1251.NewEncoder()
		raw, err := enc.String("Наименование;Цена\nПорезка ЛДСП;25\n")
		require.NoError(t, err)

		table, err := Parse([]byte(raw), "price.csv", Options{HeaderRow: -1})
		require.NoError(t, err)
		assert.Equal(t, "Порезка ЛДСП", table.Rows[1][0])
	})

	t.Run("BOM stripped", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,price\nx,1\n")...)
		table, err := Parse(data, "price.csv", Options{HeaderRow: -1})
		require.NoError(t, err)
		assert.Equal(t, "name", table.Rows[0][0])
	})

	t.Run("preview cap truncates", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("name,price\n")
		for i := 0; i < PreviewRows+50; i++ {
			fmt.Fprintf(&sb, "item %d,%d\n", i, i)
		}
		table, err := Parse([]byte(sb.String()), "price.csv", Options{HeaderRow: 0, Preview: true})
		require.NoError(t, err)
		assert.Len(t, table.Rows, PreviewRows)
		assert.True(t, table.Truncated)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Parse(nil, "price.csv", Options{HeaderRow: -1})
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestParseHTML(t *testing.T) {
	t.Run("simple table", func(t *testing.T) {
		src := `<html><body><table>
			<tr><th>Наименование</th><th>Цена</th></tr>
			<tr><td>Кромка <b>ПВХ</b></td><td>12,5</td></tr>
		</table></body></html>`

		table, err := ParsePasted(src, Options{HeaderRow: -1})
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, []string{"Кромка ПВХ", "12,5"}, table.Rows[1])
	})

	t.Run("rowspan is rejected", func(t *testing.T) {
		src := `<table><tr><td rowspan="2">x</td><td>y</td></tr><tr><td>z</td></tr></table>`
		_, err := ParsePasted(src, Options{HeaderRow: -1})
		assert.ErrorIs(t, err, ErrComplexTable)
	})

	t.Run("colspan is rejected", func(t *testing.T) {
		src := `<table><tr><td colspan="3">merged header</td></tr></table>`
		_, err := ParsePasted(src, Options{HeaderRow: -1})
		assert.ErrorIs(t, err, ErrComplexTable)
	})

	t.Run("pasted delimited text falls through to csv", func(t *testing.T) {
		table, err := ParsePasted("name\tprice\nx\t1", Options{HeaderRow: -1})
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "1"}, table.Rows[1])
	})
}

func TestDetectHeaderRow(t *testing.T) {
	t.Run("skips metadata preamble", func(t *testing.T) {
		rows := [][]string{
			{"ООО Поставщик", ""},
			{"Прайс-лист от 01.02.2026", ""},
			{"Наименование", "Цена", "Ед."},
			{"Кромка", "12", "м.п."},
		}
		assert.Equal(t, 2, DetectHeaderRow(rows))
	})

	t.Run("no keywords falls back to first non-empty", func(t *testing.T) {
		rows := [][]string{{""}, {"x", "y"}}
		assert.Equal(t, 1, DetectHeaderRow(rows))
	})
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("one"))
	b := ContentHash([]byte("one"))
	c := ContentHash([]byte("two"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
