package textnorm

import (
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// levenshteinCap bounds the overlap computation for pathological cell values.
const levenshteinCap = 255

// TrigramSimilarity computes the Jaccard coefficient over the trigram sets of
// the two strings. Returns 0 when either side is shorter than three runes.
func TrigramSimilarity(a, b string) float64 {
	ta := Trigrams(a)
	tb := Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// LevenshteinSimilarity scores two normalized strings by shared-character
// overlap rather than raw edit distance: a full distance matrix over long
// supplier names costs too much for what a ratio adds. Inputs are truncated
// to 255 runes.
func LevenshteinSimilarity(a, b string) float64 {
	na := truncateRunes(Normalize(a), levenshteinCap)
	nb := truncateRunes(Normalize(b), levenshteinCap)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ca := runeCounts(na)
	cb := runeCounts(nb)
	overlap := 0
	for r, n := range ca {
		if m, ok := cb[r]; ok {
			if m < n {
				n = m
			}
			overlap += n
		}
	}

	total := len([]rune(na)) + len([]rune(nb))
	score := 2 * float64(overlap) / float64(total)

	// A subsequence hit is a stronger signal than bag-of-characters overlap
	// alone; let it set the floor.
	if fuzzy.Match(na, nb) || fuzzy.Match(nb, na) {
		shorter, longer := len([]rune(na)), len([]rune(nb))
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		if sub := float64(shorter) / float64(longer); sub > score {
			score = sub
		}
	}
	return score
}

// CombinedSimilarity blends trigram and character-overlap scores. The trigram
// side dominates: it is order-sensitive where the overlap ratio is not.
func CombinedSimilarity(a, b string) float64 {
	return 0.6*TrigramSimilarity(a, b) + 0.4*LevenshteinSimilarity(a, b)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func runeCounts(s string) map[rune]int {
	m := make(map[rune]int, len(s))
	for _, r := range s {
		m[r]++
	}
	return m
}
