package textnorm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"lowercases and collapses whitespace", "  Кромка   ПВХ  ", "кромка пвх"},
		{"strips quotes", `Плита "Эггер" 2800`, "плита эггер 2800"},
		{"unifies dash variants", "ЛДСП — белый", "лдсп - белый"},
		{"folds ё", "Свёрла", "сверла"},
		{"decimal comma", "кромка 0,4 мм", "кромка 0.4 мм"},
		{"multiplication sign becomes dimension x", "плита 2800×2070", "плита 2800х2070"},
		{"latin lookalikes folded to cyrillic", "CТOЛ", "стол"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Normalize(tc.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Run("drops short tokens and deduplicates", func(t *testing.T) {
		tokens := Tokenize("Кромка ПВХ я кромка 19 мм")
		assert.ElementsMatch(t, []string{"кромка", "пвх", "19", "мм"}, tokens)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Tokenize("   "))
	})
}

func TestTrigrams(t *testing.T) {
	t.Run("sliding window over compacted text", func(t *testing.T) {
		set := Trigrams("аб вг")
		// normalized to "абвг" -> абв, бвг
		require.Len(t, set, 2)
		assert.Contains(t, set, "абв")
		assert.Contains(t, set, "бвг")
	})

	t.Run("too short yields empty set", func(t *testing.T) {
		assert.Empty(t, Trigrams("аб"))
	})
}

func TestTrigramSimilarity(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		assert.InDelta(t, 1.0, TrigramSimilarity("кромка пвх", "кромка пвх"), 1e-9)
	})

	t.Run("disjoint strings", func(t *testing.T) {
		assert.Zero(t, TrigramSimilarity("кромка", "фасад"))
	})

	t.Run("short side scores zero", func(t *testing.T) {
		assert.Zero(t, TrigramSimilarity("аб", "кромка пвх"))
	})

	t.Run("symmetry", func(t *testing.T) {
		a, b := "кромка пвх 19мм", "кромка abs 19мм"
		assert.InDelta(t, TrigramSimilarity(a, b), TrigramSimilarity(b, a), 1e-9)
	})
}

func TestLevenshteinSimilarity(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.InDelta(t, 1.0, LevenshteinSimilarity("порезка лдсп", "порезка лдсп"), 1e-9)
	})

	t.Run("empty side", func(t *testing.T) {
		assert.Zero(t, LevenshteinSimilarity("", "порезка"))
	})

	t.Run("related names score above unrelated", func(t *testing.T) {
		related := LevenshteinSimilarity("порезка лдсп 16мм", "порезка лдсп 18мм")
		unrelated := LevenshteinSimilarity("порезка лдсп 16мм", "фрезеровка мдф")
		assert.Greater(t, related, unrelated)
	})
}

func TestCombinedSimilarity(t *testing.T) {
	t.Run("weights are 0.6 trigram and 0.4 overlap", func(t *testing.T) {
		a, b := "кромкование прямолинейное", "кромкование криволинейное"
		expected := 0.6*TrigramSimilarity(a, b) + 0.4*LevenshteinSimilarity(a, b)
		assert.InDelta(t, expected, CombinedSimilarity(a, b), 1e-9)
	})

	t.Run("bounded by one", func(t *testing.T) {
		assert.LessOrEqual(t, CombinedSimilarity("стол", "стол"), 1.0)
	})
}

func TestNameKey(t *testing.T) {
	t.Run("stable across spelling variants", func(t *testing.T) {
		assert.Equal(t, NameKey("Кромка  ПВХ"), NameKey("кромка пвх"))
	})

	t.Run("distinct names differ", func(t *testing.T) {
		assert.NotEqual(t, NameKey("кромка пвх"), NameKey("кромка abs"))
	})
}

func BenchmarkCombinedSimilarity(b *testing.B) {
	x := "порезка лдсп 16мм прямолинейная с кромкованием"
	y := "порезка лдсп 18мм криволинейная"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CombinedSimilarity(x, y)
	}
}

func BenchmarkTrigrams(b *testing.B) {
	s := "столешница влагостойкая 3000х600х38 глянец"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Trigrams(s)
	}
}

func ExampleNormalize() {
	fmt.Println(Normalize(`Кромка   ПВХ — 0,4 мм "глянец"`))
	// Output: кромка пвх - 0.4 мм глянец
}
