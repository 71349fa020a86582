package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope restricts lookups to system-wide items plus one user's own.
type Scope struct {
	UserID *uuid.UUID
}

// Reader is the read surface the matcher needs. Implementations must treat a
// miss as ErrNotFound-free: lookups return (nil, nil) when nothing matches so
// callers can cascade without error juggling.
type Reader interface {
	// AliasByKey resolves a supplier-scoped external key for one item kind.
	AliasByKey(ctx context.Context, supplierID uuid.UUID, externalKey string, kind ItemKind) (*Alias, error)
	// ItemByNormalizedName finds the exact normalized-name match within scope.
	ItemByNormalizedName(ctx context.Context, kind ItemKind, normalizedName string, scope Scope) (*Item, error)
	// ItemByID fetches one item.
	ItemByID(ctx context.Context, kind ItemKind, id uuid.UUID) (*Item, error)
	// SimilarItems returns a candidate pool whose stored similarity to the
	// normalized name clears a coarse floor. Final scoring and ranking is the
	// caller's job.
	SimilarItems(ctx context.Context, kind ItemKind, normalizedName string, floor float64, limit int, scope Scope) ([]Item, error)
}

// Tx is the write surface available inside one catalog transaction.
type Tx interface {
	Reader

	CreateItem(ctx context.Context, item *Item) error
	// UpsertAlias inserts or refreshes the alias keyed by
	// (supplier, external key, item kind), bumping usage counters.
	UpsertAlias(ctx context.Context, alias *Alias) (created bool, err error)
	// UpsertPriceSnapshot inserts or replaces the snapshot keyed by
	// (supplier, version, item kind, item-or-source-name, price type).
	UpsertPriceSnapshot(ctx context.Context, snap *PriceSnapshot) (created bool, err error)
	// ActivateVersion flips the version to active and atomically archives any
	// previously active version for the same supplier and kind. Activating an
	// already-active version is a no-op.
	ActivateVersion(ctx context.Context, versionID uuid.UUID) error
}

// Store is the full catalog contract. InTx runs fn inside one ACID
// transaction: either every write in fn lands or none do.
type Store interface {
	Reader

	VersionByID(ctx context.Context, id uuid.UUID) (*PriceListVersion, error)
	CreateVersion(ctx context.Context, v *PriceListVersion) error
	CreateSupplier(ctx context.Context, s *Supplier) error
	SupplierByID(ctx context.Context, id uuid.UUID) (*Supplier, error)

	// ItemPrices lists per-unit prices for one item across suppliers' active
	// versions, for aggregate reads such as the median.
	ItemPrices(ctx context.Context, kind ItemKind, itemID uuid.UUID) ([]PriceSnapshot, error)

	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// MedianOf computes the median of a price set: middle element for odd sizes,
// the average of the two middle elements for even sizes.
func MedianOf(prices []decimal.Decimal) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].LessThan(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return sorted[mid-1].Add(sorted[mid]).DivRound(decimal.NewFromInt(2), 6), true
}
