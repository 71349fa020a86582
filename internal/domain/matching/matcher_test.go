package matching

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/priceport/internal/domain/catalog"
)

func seedItem(t *testing.T, store *catalog.MemStore, kind catalog.ItemKind, name, normalized string) *catalog.Item {
	t.Helper()
	item := &catalog.Item{Kind: kind, Name: name, NormalizedName: normalized}
	require.NoError(t, store.InTx(context.Background(), func(tx catalog.Tx) error {
		return tx.CreateItem(context.Background(), item)
	}))
	return item
}

func seedAlias(t *testing.T, store *catalog.MemStore, supplierID uuid.UUID, key string, item *catalog.Item) {
	t.Helper()
	require.NoError(t, store.InTx(context.Background(), func(tx catalog.Tx) error {
		_, err := tx.UpsertAlias(context.Background(), &catalog.Alias{
			SupplierID:  supplierID,
			ExternalKey: key,
			Item:        item.Ref(),
			Conversion:  decimal.NewFromInt(1),
			Confidence:  catalog.ConfidenceManual,
		})
		return err
	}))
}

func TestMatcherCascade(t *testing.T) {
	ctx := context.Background()
	supplierID := uuid.New()

	t.Run("sku alias short-circuits everything", func(t *testing.T) {
		store := catalog.NewMemStore()
		target := seedItem(t, store, catalog.KindMaterials, "ЛДСП белый", "лдсп белый")
		// An exact-name decoy the alias must outrank.
		seedItem(t, store, catalog.KindMaterials, "Совсем другое", "совсем другое")
		seedAlias(t, store, supplierID, SKUKey("ART-42"), target)

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "Совсем другое",
			SKU:        "ART-42",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodAliasSKU, res.Method)
		assert.Equal(t, target.ID, res.Item.ID)
		require.NotNil(t, res.Alias)
		assert.Equal(t, 1.0, res.Score)
	})

	t.Run("name hash alias when no sku", func(t *testing.T) {
		store := catalog.NewMemStore()
		target := seedItem(t, store, catalog.KindOperations, "Порезка ЛДСП", "порезка лдсп")
		seedAlias(t, store, supplierID, NameKeyFor("порезка лдсп"), target)

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindOperations,
			RawName:    "ПОРЕЗКА  ЛДСП",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodAliasName, res.Method)
	})

	t.Run("dangling alias falls through to exact", func(t *testing.T) {
		store := catalog.NewMemStore()
		ghost := &catalog.Item{ID: uuid.New(), Kind: catalog.KindMaterials}
		seedAlias(t, store, supplierID, SKUKey("ART-1"), ghost)
		real := seedItem(t, store, catalog.KindMaterials, "Кромка ПВХ", "кромка пвх")

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "Кромка ПВХ",
			SKU:        "ART-1",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodExact, res.Method)
		assert.Equal(t, real.ID, res.Item.ID)
	})

	t.Run("alias crossing marker groups is distrusted", func(t *testing.T) {
		store := catalog.NewMemStore()
		straight := seedItem(t, store, catalog.KindOperations,
			"Порезка ЛДСП прямолинейная", "порезка лдсп прямолинейная")
		seedAlias(t, store, supplierID, SKUKey("OP-7"), straight)

		// The supplier reused the article code for a different operation;
		// the learned alias must not link across the marker conflict.
		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindOperations,
			RawName:    "Порезка ЛДСП криволинейная",
			SKU:        "OP-7",
		})
		require.NoError(t, err)
		assert.False(t, res.Matched())
		assert.Nil(t, res.Alias)
		assert.Equal(t, MethodNone, res.Method)
		assert.Empty(t, res.Candidates)
	})

	t.Run("distrusted sku alias still consults name hash alias", func(t *testing.T) {
		store := catalog.NewMemStore()
		straight := seedItem(t, store, catalog.KindOperations,
			"Порезка ЛДСП прямолинейная", "порезка лдсп прямолинейная")
		curved := seedItem(t, store, catalog.KindOperations,
			"Порезка ЛДСП криволинейная", "порезка лдсп криволинейная")
		seedAlias(t, store, supplierID, SKUKey("OP-7"), straight)
		seedAlias(t, store, supplierID, NameKeyFor("порезка лдсп криволинейная"), curved)

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindOperations,
			RawName:    "Порезка ЛДСП криволинейная",
			SKU:        "OP-7",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodAliasName, res.Method)
		assert.Equal(t, curved.ID, res.Item.ID)
	})

	t.Run("exact normalized name match", func(t *testing.T) {
		store := catalog.NewMemStore()
		target := seedItem(t, store, catalog.KindMaterials, "Кромка ПВХ 2мм", "кромка пвх 2мм")

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "КРОМКА ПВХ 2ММ",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodExact, res.Method)
		assert.Equal(t, target.ID, res.Item.ID)
	})

	t.Run("strong fuzzy match auto-accepts", func(t *testing.T) {
		store := catalog.NewMemStore()
		target := seedItem(t, store, catalog.KindMaterials, "Кромка ПВХ белая 2мм", "кромка пвх белая 2мм")

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "Кромка ПВХ белая, 2мм.",
		})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, MethodFuzzyAuto, res.Method)
		assert.Equal(t, target.ID, res.Item.ID)
		assert.GreaterOrEqual(t, res.Score, 0.7)
	})

	t.Run("weak fuzzy match is ambiguous", func(t *testing.T) {
		store := catalog.NewMemStore()
		seedItem(t, store, catalog.KindMaterials, "Кромка ПВХ белая глянец", "кромка пвх белая глянец")
		seedItem(t, store, catalog.KindMaterials, "Кромка ПВХ серая глянец", "кромка пвх серая глянец")

		cfg := func(kind catalog.ItemKind) Config {
			return Config{FuzzyFloor: 0.3, AutoAccept: 0.99, TopK: 10}
		}
		res, err := NewMatcher(store).WithConfig(cfg).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "Кромка ПВХ глянец",
		})
		require.NoError(t, err)
		require.False(t, res.Matched())
		require.True(t, res.Ambiguous())
		assert.Equal(t, MethodNone, res.Method)
		assert.Len(t, res.Candidates, 2)
		assert.GreaterOrEqual(t, res.Candidates[0].Score, res.Candidates[1].Score)
	})

	t.Run("no candidates means new item", func(t *testing.T) {
		store := catalog.NewMemStore()
		seedItem(t, store, catalog.KindMaterials, "Стекло матовое", "стекло матовое")

		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "Фурнитура петля накладная",
		})
		require.NoError(t, err)
		assert.False(t, res.Matched())
		assert.False(t, res.Ambiguous())
		assert.Equal(t, MethodNone, res.Method)
	})

	t.Run("empty name is new without lookups", func(t *testing.T) {
		store := catalog.NewMemStore()
		res, err := NewMatcher(store).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindMaterials,
			RawName:    "   ",
		})
		require.NoError(t, err)
		assert.Equal(t, MethodNone, res.Method)
	})

	t.Run("guard vetoes marker conflicts despite similarity", func(t *testing.T) {
		store := catalog.NewMemStore()
		seedItem(t, store, catalog.KindOperations, "Порезка ЛДСП прямолинейная", "порезка лдсп прямолинейная")

		cfg := func(kind catalog.ItemKind) Config {
			return Config{FuzzyFloor: 0.1, AutoAccept: 0.3, TopK: 10}
		}
		res, err := NewMatcher(store).WithConfig(cfg).Match(ctx, Input{
			SupplierID: supplierID,
			Kind:       catalog.KindOperations,
			RawName:    "Порезка ЛДСП криволинейная",
		})
		require.NoError(t, err)
		assert.False(t, res.Matched())
		assert.Empty(t, res.Candidates)
	})
}

func TestGuard(t *testing.T) {
	g := NewGuard()

	cases := []struct {
		name       string
		a, b       string
		consistent bool
	}{
		{"identical", "порезка лдсп", "порезка лдсп", true},
		{"marker family conflict", "порезка лдсп криволинейная", "порезка лдсп прямолинейная", false},
		{"cut vs edge", "порезка лдсп", "кромкование лдсп", false},
		{"gloss vs matte", "фасад глянцевый", "фасад матовый", false},
		{"dimension conflict", "лист 1200х600", "лист 1200х800", false},
		{"dimension agreement", "лист 1200х600 белый", "лист белый 1200х600", true},
		{"dimension vs none", "лист 1200х600", "лист", true},
		{"diameter conflict", "сверление диаметром 5", "сверление диаметром 8", false},
		{"diameter shorthand conflict", "присадка d5", "присадка д 8", false},
		{"trailing д in a noun is not a diameter", "фасад 600", "фасад 800", true},
		{"trailing ф in a noun is not a diameter", "шкаф 3 секции", "шкаф 4 секции", true},
		{"drill marker shared", "сверление отверстий", "присадка отверстий", true},
		{"plain names", "лдсп белый", "лдсп серый", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.consistent, g.Consistent(tc.a, tc.b))
			assert.Equal(t, tc.consistent, g.Consistent(tc.b, tc.a), "guard must be symmetric")
		})
	}
}

func TestAliasKeys(t *testing.T) {
	t.Run("sku key normalizes", func(t *testing.T) {
		assert.Equal(t, SKUKey("art-42"), SKUKey("ART-42"))
	})
	t.Run("name key is stable across raw spellings", func(t *testing.T) {
		assert.Equal(t, NameKeyFor("порезка  лдсп"), NameKeyFor("ПОРЕЗКА ЛДСП"))
	})
	t.Run("key kinds never collide", func(t *testing.T) {
		assert.NotEqual(t, SKUKey("x"), NameKeyFor("x"))
	})
}
