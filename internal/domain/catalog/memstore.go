package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/priceport/internal/domain/textnorm"
)

// MemStore is an in-memory Store with real transaction semantics: InTx
// stages writes on a copy of the state and publishes it only on success.
// It backs tests and local runs without Postgres.
type MemStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	suppliers map[uuid.UUID]Supplier
	versions  map[uuid.UUID]PriceListVersion
	items     map[uuid.UUID]Item
	aliases   map[string]Alias
	snapshots map[string]PriceSnapshot
}

func newMemState() *memState {
	return &memState{
		suppliers: make(map[uuid.UUID]Supplier),
		versions:  make(map[uuid.UUID]PriceListVersion),
		items:     make(map[uuid.UUID]Item),
		aliases:   make(map[string]Alias),
		snapshots: make(map[string]PriceSnapshot),
	}
}

func (st *memState) clone() *memState {
	next := newMemState()
	for k, v := range st.suppliers {
		next.suppliers[k] = v
	}
	for k, v := range st.versions {
		next.versions[k] = v
	}
	for k, v := range st.items {
		next.items[k] = v
	}
	for k, v := range st.aliases {
		next.aliases[k] = v
	}
	for k, v := range st.snapshots {
		next.snapshots[k] = v
	}
	return next
}

// NewMemStore creates an empty in-memory catalog store.
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState(), now: time.Now}
}

func aliasKey(supplierID uuid.UUID, externalKey string, kind ItemKind) string {
	return fmt.Sprintf("%s|%s|%s", supplierID, externalKey, kind)
}

func snapshotKey(sn *PriceSnapshot) string {
	ident := "name:" + sn.SourceName
	if sn.ItemID != nil {
		ident = "item:" + sn.ItemID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", sn.SupplierID, sn.VersionID, sn.ItemKind, ident, sn.PriceType)
}

// memTx reads and writes a private clone of the store state.
type memTx struct {
	state *memState
	now   func() time.Time
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemStore) AliasByKey(ctx context.Context, supplierID uuid.UUID, externalKey string, kind ItemKind) (*Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: s.state, now: s.now}).AliasByKey(ctx, supplierID, externalKey, kind)
}

func (s *MemStore) ItemByNormalizedName(ctx context.Context, kind ItemKind, normalizedName string, scope Scope) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: s.state, now: s.now}).ItemByNormalizedName(ctx, kind, normalizedName, scope)
}

func (s *MemStore) ItemByID(ctx context.Context, kind ItemKind, id uuid.UUID) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: s.state, now: s.now}).ItemByID(ctx, kind, id)
}

func (s *MemStore) SimilarItems(ctx context.Context, kind ItemKind, normalizedName string, floor float64, limit int, scope Scope) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{state: s.state, now: s.now}).SimilarItems(ctx, kind, normalizedName, floor, limit, scope)
}

func (s *MemStore) VersionByID(ctx context.Context, id uuid.UUID) (*PriceListVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.state.versions[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *MemStore) CreateVersion(ctx context.Context, v *PriceListVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = VersionDraft
	}
	v.CreatedAt = s.now()
	s.state.versions[v.ID] = *v
	return nil
}

func (s *MemStore) CreateSupplier(ctx context.Context, sup *Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sup.ID == uuid.Nil {
		sup.ID = uuid.New()
	}
	s.state.suppliers[sup.ID] = *sup
	return nil
}

func (s *MemStore) SupplierByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sup, ok := s.state.suppliers[id]; ok {
		return &sup, nil
	}
	return nil, nil
}

func (s *MemStore) ItemPrices(ctx context.Context, kind ItemKind, itemID uuid.UUID) ([]PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []PriceSnapshot
	for _, sn := range s.state.snapshots {
		if sn.ItemKind != kind || sn.ItemID == nil || *sn.ItemID != itemID {
			continue
		}
		v, ok := s.state.versions[sn.VersionID]
		if !ok || v.Status != VersionActive {
			continue
		}
		snaps = append(snaps, sn)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SourceRow < snaps[j].SourceRow })
	return snaps, nil
}

func (t *memTx) AliasByKey(ctx context.Context, supplierID uuid.UUID, externalKey string, kind ItemKind) (*Alias, error) {
	if a, ok := t.state.aliases[aliasKey(supplierID, externalKey, kind)]; ok {
		return &a, nil
	}
	return nil, nil
}

func (t *memTx) ItemByNormalizedName(ctx context.Context, kind ItemKind, normalizedName string, scope Scope) (*Item, error) {
	var global *Item
	for id := range t.state.items {
		it := t.state.items[id]
		if it.Kind != kind || it.NormalizedName != normalizedName {
			continue
		}
		if !inScope(&it, scope) {
			continue
		}
		if it.UserID != nil {
			return &it, nil
		}
		global = &it
	}
	return global, nil
}

func (t *memTx) ItemByID(ctx context.Context, kind ItemKind, id uuid.UUID) (*Item, error) {
	if it, ok := t.state.items[id]; ok && it.Kind == kind {
		return &it, nil
	}
	return nil, nil
}

func (t *memTx) SimilarItems(ctx context.Context, kind ItemKind, normalizedName string, floor float64, limit int, scope Scope) ([]Item, error) {
	type scored struct {
		item  Item
		score float64
	}
	var pool []scored
	for id := range t.state.items {
		it := t.state.items[id]
		if it.Kind != kind || !inScope(&it, scope) {
			continue
		}
		score := textnorm.TrigramSimilarity(normalizedName, it.NormalizedName)
		if score > floor {
			pool = append(pool, scored{item: it, score: score})
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return strings.Compare(pool[i].item.NormalizedName, pool[j].item.NormalizedName) < 0
	})
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	items := make([]Item, len(pool))
	for i, sc := range pool {
		items[i] = sc.item
	}
	return items, nil
}

func (t *memTx) CreateItem(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = t.now()
	t.state.items[item.ID] = *item
	return nil
}

func (t *memTx) UpsertAlias(ctx context.Context, alias *Alias) (bool, error) {
	key := aliasKey(alias.SupplierID, alias.ExternalKey, alias.Item.Kind)
	if prev, ok := t.state.aliases[key]; ok {
		alias.ID = prev.ID
		alias.UseCount = prev.UseCount + 1
		alias.FirstSeen = prev.FirstSeen
		alias.LastSeen = t.now()
		t.state.aliases[key] = *alias
		return false, nil
	}
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	alias.UseCount = 1
	alias.FirstSeen = t.now()
	alias.LastSeen = alias.FirstSeen
	t.state.aliases[key] = *alias
	return true, nil
}

func (t *memTx) UpsertPriceSnapshot(ctx context.Context, snap *PriceSnapshot) (bool, error) {
	key := snapshotKey(snap)
	prev, existed := t.state.snapshots[key]
	if existed {
		snap.ID = prev.ID
		snap.CreatedAt = prev.CreatedAt
	} else {
		if snap.ID == uuid.Nil {
			snap.ID = uuid.New()
		}
		snap.CreatedAt = t.now()
	}
	t.state.snapshots[key] = *snap
	return !existed, nil
}

func (t *memTx) ActivateVersion(ctx context.Context, versionID uuid.UUID) error {
	v, ok := t.state.versions[versionID]
	if !ok {
		return fmt.Errorf("activate version %s: %w", versionID, ErrNotFound)
	}
	if v.Status == VersionActive {
		return nil
	}
	for id, other := range t.state.versions {
		if other.SupplierID == v.SupplierID && other.Kind == v.Kind && other.Status == VersionActive {
			other.Status = VersionArchived
			t.state.versions[id] = other
		}
	}
	v.Status = VersionActive
	t.state.versions[versionID] = v
	return nil
}

func inScope(it *Item, scope Scope) bool {
	if it.UserID == nil {
		return true
	}
	return scope.UserID != nil && *it.UserID == *scope.UserID
}
