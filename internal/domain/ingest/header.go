package ingest

import "strings"

// Header keywords seen across supplier price lists (RU + EN).
var headerKeywords = []string{
	"наименование", "название", "товар", "услуга", "операция", "материал",
	"цена", "стоимость", "артикул", "ед.", "единица", "изм", "кол-во",
	"name", "item", "description", "price", "cost", "sku", "article",
	"unit", "qty", "category", "категория",
}

// DetectHeaderRow scores the first rows by header-keyword hits and cell
// count, the same way bank-statement sniffers locate the header line in a
// metadata-prefixed export. Falls back to the first non-empty row.
func DetectHeaderRow(rows [][]string) int {
	const searchDepth = 20

	bestIdx, bestScore := -1, 0
	firstNonEmpty := -1

	for i, row := range rows {
		if i >= searchDepth {
			break
		}

		filled := 0
		hits := 0
		for _, cell := range row {
			cell = strings.ToLower(strings.TrimSpace(cell))
			if cell == "" {
				continue
			}
			filled++
			for _, kw := range headerKeywords {
				if strings.Contains(cell, kw) {
					hits++
					break
				}
			}
		}

		if filled > 0 && firstNonEmpty < 0 {
			firstNonEmpty = i
		}
		if hits == 0 {
			continue
		}
		score := hits*10 + filled
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx >= 0 {
		return bestIdx
	}
	if firstNonEmpty >= 0 {
		return firstNonEmpty
	}
	return 0
}
