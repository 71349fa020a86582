package textnorm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnit(t *testing.T) {
	t.Run("square meter spelling variants converge", func(t *testing.T) {
		for _, raw := range []string{"м2", "m2", "М²", "кв.м", "КВ М"} {
			got := NormalizeUnit(raw)
			require.NotNil(t, got, raw)
			assert.Equal(t, "м²", *got, raw)
		}
	})

	t.Run("running meter", func(t *testing.T) {
		for _, raw := range []string{"м.п.", "мп", "пог.м", "п.м"} {
			got := NormalizeUnit(raw)
			require.NotNil(t, got, raw)
			assert.Equal(t, "м.п.", *got, raw)
		}
	})

	t.Run("empty is nil", func(t *testing.T) {
		assert.Nil(t, NormalizeUnit(""))
		assert.Nil(t, NormalizeUnit("   "))
	})

	t.Run("unknown unit keeps cleaned spelling", func(t *testing.T) {
		got := NormalizeUnit("Бухта")
		require.NotNil(t, got)
		assert.Equal(t, "бухта", *got)
	})
}

func TestGuessConversion(t *testing.T) {
	strp := func(s string) *string { return &s }

	tests := []struct {
		name     string
		from, to *string
		expected decimal.Decimal
	}{
		{"same unit", strp("шт"), strp("шт"), decimal.NewFromInt(1)},
		{"litre to millilitre", strp("л"), strp("мл"), decimal.NewFromInt(1000)},
		{"kilogram to gram", strp("кг"), strp("г"), decimal.NewFromInt(1000)},
		{"millimetre to metre", strp("мм"), strp("м"), decimal.NewFromFloat(0.001)},
		{"unknown pair defaults to one", strp("лист"), strp("м²"), decimal.NewFromInt(1)},
		{"nil side defaults to one", nil, strp("шт"), decimal.NewFromInt(1)},
		{"variant spellings resolve before lookup", strp("L"), strp("ml"), decimal.NewFromInt(1000)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := GuessConversion(tc.from, tc.to)
			assert.True(t, tc.expected.Equal(got), "expected %s got %s", tc.expected, got)
		})
	}
}
