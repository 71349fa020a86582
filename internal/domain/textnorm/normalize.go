// Package textnorm provides pure text normalization and similarity scoring
// used by price-list matching. All functions are stateless.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

// Latin→Cyrillic visual lookalikes. Supplier price lists routinely mix the
// two alphabets inside one name ("СТОЛЕШНИЦА" typed with a Latin C).
var lookalikes = map[rune]rune{
	'A': 'А', 'B': 'В', 'C': 'С', 'E': 'Е', 'H': 'Н', 'K': 'К', 'M': 'М',
	'O': 'О', 'P': 'Р', 'T': 'Т', 'X': 'Х', 'Y': 'У',
	'a': 'а', 'c': 'с', 'e': 'е', 'o': 'о', 'p': 'р', 'x': 'х',
}

var (
	decimalComma   = regexp.MustCompile(`(\d),(\d)`)
	disallowedRune = regexp.MustCompile(`[^\p{L}\p{N}\s.-]+`)
)

// Normalize lowercases the input, folds ё→е and Latin lookalikes into
// Cyrillic, unifies dash and multiplication-sign variants, converts decimal
// commas to dots and strips the remaining punctuation.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case 'ё':
			r = 'е'
		case 'Ё':
			r = 'Е'
		case '‒', '–', '—', '―', '−':
			r = '-'
		case '×', '*':
			// keep dimension tokens like 120*45 recognizable
			r = 'х'
		case ' ':
			r = ' '
		default:
			if rr, ok := lookalikes[r]; ok {
				r = rr
			}
		}
		b = append(b, unicode.ToLower(r))
	}

	out := string(b)
	out = decimalComma.ReplaceAllString(out, "$1.$2")
	out = disallowedRune.ReplaceAllString(out, " ")
	return collapseSpaces(out)
}

// Tokenize splits a normalized string into deduplicated tokens. Tokens
// shorter than two runes carry no signal and are dropped. Order is not
// significant to callers.
func Tokenize(s string) []string {
	fields := strings.Fields(Normalize(s))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".-")
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Trigrams returns the set of 3-rune windows over the normalized string with
// spaces removed. Strings shorter than three runes yield an empty set.
func Trigrams(s string) map[string]struct{} {
	compact := strings.ReplaceAll(Normalize(s), " ", "")
	r := []rune(compact)
	set := make(map[string]struct{})
	if len(r) < 3 {
		return set
	}
	for i := 0; i <= len(r)-3; i++ {
		set[string(r[i:i+3])] = struct{}{}
	}
	return set
}

// NameKey returns a stable hex key for a supplier row name, used as the alias
// external key when the supplier exposes no SKU.
func NameKey(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
