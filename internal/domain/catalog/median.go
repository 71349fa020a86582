package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// medianTTL bounds how stale a cached median may get between price writes.
const medianTTL = 5 * time.Minute

type medianEntry struct {
	value     decimal.Decimal
	ok        bool
	expiresAt time.Time
}

// PriceStats serves aggregate price reads with a short TTL cache keyed by
// item id. Writes touching an item must call Invalidate for it.
type PriceStats struct {
	store Store

	mu    sync.Mutex
	cache map[ItemRef]medianEntry
	now   func() time.Time
}

// NewPriceStats creates the aggregate-read service over a catalog store.
func NewPriceStats(store Store) *PriceStats {
	return &PriceStats{
		store: store,
		cache: make(map[ItemRef]medianEntry),
		now:   time.Now,
	}
}

// MedianPrice returns the median per-unit price of one item across all
// suppliers' active versions. Snapshots whose supplier unit differs from the
// internal unit while the conversion factor was left at 1 are excluded: the
// per-unit price of such rows is not comparable.
func (s *PriceStats) MedianPrice(ctx context.Context, kind ItemKind, itemID uuid.UUID) (decimal.Decimal, bool, error) {
	ref := ItemRef{Kind: kind, ID: itemID}

	s.mu.Lock()
	if e, ok := s.cache[ref]; ok && s.now().Before(e.expiresAt) {
		s.mu.Unlock()
		return e.value, e.ok, nil
	}
	s.mu.Unlock()

	snaps, err := s.store.ItemPrices(ctx, kind, itemID)
	if err != nil {
		return decimal.Zero, false, err
	}

	one := decimal.NewFromInt(1)
	prices := make([]decimal.Decimal, 0, len(snaps))
	for _, sn := range snaps {
		if unitMismatch(sn) && sn.Conversion.Equal(one) {
			continue
		}
		prices = append(prices, sn.PricePerUnit)
	}

	median, ok := MedianOf(prices)

	s.mu.Lock()
	s.cache[ref] = medianEntry{value: median, ok: ok, expiresAt: s.now().Add(medianTTL)}
	s.mu.Unlock()

	return median, ok, nil
}

// Invalidate drops the cached median for one item. Called by price writers.
func (s *PriceStats) Invalidate(kind ItemKind, itemID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, ItemRef{Kind: kind, ID: itemID})
	s.mu.Unlock()
}

// PurgeExpired removes stale entries; wired to the maintenance scheduler.
func (s *PriceStats) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for ref, e := range s.cache {
		if !now.Before(e.expiresAt) {
			delete(s.cache, ref)
			removed++
		}
	}
	return removed
}

func unitMismatch(sn PriceSnapshot) bool {
	if sn.SourceUnit == nil || sn.InternalUnit == nil {
		return false
	}
	return *sn.SourceUnit != *sn.InternalUnit
}
