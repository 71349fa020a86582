package textnorm

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyNoise = regexp.MustCompile(`(?i)(руб\.?|грн\.?|тг\.?|р\.|[₽$€£₴]|uah|rub|usd|eur|kzt)`)

var decimalCommaTail = regexp.MustCompile(`,\d{1,2}$`)

// ExtractPrice pulls a numeric price out of a raw cell value. Currency
// symbols and whitespace are stripped. A single comma followed by one or two
// digits is treated as the decimal separator; any other commas are assumed to
// be thousands separators and removed. Returns false when the remainder is
// not numeric.
func ExtractPrice(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	s = currencyNoise.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}

	if strings.Count(s, ",") == 1 && decimalCommaTail.MatchString(s) {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
