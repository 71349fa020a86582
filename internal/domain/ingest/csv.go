package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func parseDelimited(data []byte, opts Options) (*Table, error) {
	br := bufio.NewReader(bytes.NewReader(stripBOM(data)))

	peek, _ := br.Peek(2048)
	var reader io.Reader = br
	if cs := detectCharset(peek); cs == "windows-1251" || cs == "cp1251" {
		reader = transform.NewReader(br, charmap.Windows1251.NewDecoder())
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode text: %w", err)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = detectDelimiter(decoded)
	}

	cr := csv.NewReader(bytes.NewReader(decoded))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	limit := opts.rowCap()
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read delimited row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
		if len(rows) > limit {
			break
		}
	}

	return finishTable(rows, opts, 0, nil)
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

func detectCharset(peek []byte) string {
	if len(peek) == 0 {
		return "utf-8"
	}
	det, err := chardet.NewTextDetector().DetectBest(peek)
	if err != nil || det == nil {
		return "utf-8"
	}
	return strings.ToLower(det.Charset)
}

// detectDelimiter picks the delimiter with the highest count on the first
// non-empty line. Semicolon wins ties: it is what RU spreadsheet exports use.
func detectDelimiter(data []byte) rune {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		best, bestCount := ',', 0
		for _, d := range []rune{';', '\t', ',', '|'} {
			if c := strings.Count(line, string(d)); c > bestCount {
				best, bestCount = d, c
			}
		}
		return best
	}
	return ','
}
