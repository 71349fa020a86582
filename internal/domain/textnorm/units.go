package textnorm

import (
	"strings"

	"github.com/shopspring/decimal"
)

// canonicalUnits maps cleaned unit spellings to their canonical form.
// Keys are lowercased with dots and spaces removed and ²/³ folded to digits.
var canonicalUnits = map[string]string{
	"м2": "м²", "квм": "м²", "m2": "м²", "sqm": "м²",
	"м3": "м³", "кубм": "м³", "m3": "м³",
	"мп": "м.п.", "погм": "м.п.", "пм": "м.п.",
	"шт": "шт", "штук": "шт", "pcs": "шт", "pc": "шт", "ea": "шт",
	"л": "л", "l": "л", "литр": "л",
	"мл": "мл", "ml": "мл",
	"кг": "кг", "kg": "кг",
	"г": "г", "гр": "г",
	"м": "м", "m": "м", "метр": "м",
	"мм": "мм", "mm": "мм",
	"см": "см", "cm": "см",
	"компл": "компл", "комплект": "компл", "set": "компл",
	"лист": "лист", "sheet": "лист",
	"упак": "упак", "уп": "упак", "pack": "упак",
	"час": "час", "ч": "час", "h": "час",
}

// NormalizeUnit resolves unit spelling variants ("м2", "M2", "М²") to one
// canonical form. Returns nil for empty input. Unknown units are kept as
// their cleaned spelling rather than rejected: the importer stores them for
// audit either way.
func NormalizeUnit(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	cleaned := Normalize(s)
	cleaned = strings.NewReplacer("²", "2", "³", "3", ".", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return nil
	}
	if canon, ok := canonicalUnits[cleaned]; ok {
		return &canon
	}
	return &cleaned
}

// unitPair is a directed supplier-unit → internal-unit key.
type unitPair struct{ from, to string }

var conversionHints = map[unitPair]decimal.Decimal{
	{"л", "мл"}:  decimal.NewFromInt(1000),
	{"кг", "г"}:  decimal.NewFromInt(1000),
	{"м", "мм"}:  decimal.NewFromInt(1000),
	{"м", "см"}:  decimal.NewFromInt(100),
	{"мл", "л"}:  decimal.NewFromFloat(0.001),
	{"г", "кг"}:  decimal.NewFromFloat(0.001),
	{"мм", "м"}:  decimal.NewFromFloat(0.001),
	{"см", "м"}:  decimal.NewFromFloat(0.01),
	{"м", "м.п."}: decimal.NewFromInt(1),
	{"м.п.", "м"}: decimal.NewFromInt(1),
}

// GuessConversion suggests a conversion factor between a supplier unit and an
// internal unit from a small table of known equivalences, defaulting to 1.
// The suggestion is only a starting point for manual resolution.
func GuessConversion(supplierUnit, internalUnit *string) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if supplierUnit == nil || internalUnit == nil {
		return one
	}
	from := NormalizeUnit(*supplierUnit)
	to := NormalizeUnit(*internalUnit)
	if from == nil || to == nil || *from == *to {
		return one
	}
	if f, ok := conversionHints[unitPair{*from, *to}]; ok {
		return f
	}
	return one
}
