package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx covers both pgxpool.Pool and pgx.Tx so queries run unchanged inside
// and outside a transaction.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type queries struct {
	db dbtx
}

// PostgresStore is the pgx-backed catalog store.
type PostgresStore struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a catalog store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{db: pool}, pool: pool}
}

// InTx runs fn inside one transaction; fn's error rolls everything back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&queries{db: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

func (q *queries) AliasByKey(ctx context.Context, supplierID uuid.UUID, externalKey string, kind ItemKind) (*Alias, error) {
	query := `
		SELECT id, supplier_id, external_key, external_name, item_kind, item_id,
		       supplier_unit, internal_unit, conversion_factor, confidence,
		       use_count, first_seen, last_seen
		FROM supplier_aliases
		WHERE supplier_id = $1 AND external_key = $2 AND item_kind = $3
	`

	var a Alias
	err := q.db.QueryRow(ctx, query, supplierID, externalKey, kind).Scan(
		&a.ID, &a.SupplierID, &a.ExternalKey, &a.ExternalName,
		&a.Item.Kind, &a.Item.ID,
		&a.SupplierUnit, &a.InternalUnit, &a.Conversion, &a.Confidence,
		&a.UseCount, &a.FirstSeen, &a.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *queries) ItemByNormalizedName(ctx context.Context, kind ItemKind, normalizedName string, scope Scope) (*Item, error) {
	query := `
		SELECT id, kind, user_id, name, normalized_name, unit, category, created_at
		FROM catalog_items
		WHERE kind = $1 AND normalized_name = $2
		  AND (user_id IS NULL OR user_id = $3)
		ORDER BY CASE WHEN user_id = $3 THEN 0 ELSE 1 END
		LIMIT 1
	`

	var it Item
	err := q.db.QueryRow(ctx, query, kind, normalizedName, scope.UserID).Scan(
		&it.ID, &it.Kind, &it.UserID, &it.Name, &it.NormalizedName,
		&it.Unit, &it.Category, &it.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (q *queries) ItemByID(ctx context.Context, kind ItemKind, id uuid.UUID) (*Item, error) {
	query := `
		SELECT id, kind, user_id, name, normalized_name, unit, category, created_at
		FROM catalog_items
		WHERE kind = $1 AND id = $2
	`

	var it Item
	err := q.db.QueryRow(ctx, query, kind, id).Scan(
		&it.ID, &it.Kind, &it.UserID, &it.Name, &it.NormalizedName,
		&it.Unit, &it.Category, &it.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// SimilarItems pre-filters candidates with pg_trgm similarity; the matcher
// re-scores the pool with its combined metric afterwards.
func (q *queries) SimilarItems(ctx context.Context, kind ItemKind, normalizedName string, floor float64, limit int, scope Scope) ([]Item, error) {
	query := `
		SELECT id, kind, user_id, name, normalized_name, unit, category, created_at
		FROM catalog_items
		WHERE kind = $1
		  AND (user_id IS NULL OR user_id = $2)
		  AND similarity(normalized_name, $3) > $4
		ORDER BY similarity(normalized_name, $3) DESC
		LIMIT $5
	`

	rows, err := q.db.Query(ctx, query, kind, scope.UserID, normalizedName, floor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.Kind, &it.UserID, &it.Name, &it.NormalizedName,
			&it.Unit, &it.Category, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *queries) CreateItem(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `
		INSERT INTO catalog_items (id, kind, user_id, name, normalized_name, unit, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return q.db.QueryRow(ctx, query,
		item.ID, item.Kind, item.UserID, item.Name, item.NormalizedName,
		item.Unit, item.Category,
	).Scan(&item.CreatedAt)
}

func (q *queries) UpsertAlias(ctx context.Context, alias *Alias) (bool, error) {
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	query := `
		INSERT INTO supplier_aliases (
			id, supplier_id, external_key, external_name, item_kind, item_id,
			supplier_unit, internal_unit, conversion_factor, confidence,
			use_count, first_seen, last_seen
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, now(), now())
		ON CONFLICT (supplier_id, external_key, item_kind) DO UPDATE SET
			external_name     = EXCLUDED.external_name,
			item_id           = EXCLUDED.item_id,
			supplier_unit     = EXCLUDED.supplier_unit,
			internal_unit     = EXCLUDED.internal_unit,
			conversion_factor = EXCLUDED.conversion_factor,
			confidence        = EXCLUDED.confidence,
			use_count         = supplier_aliases.use_count + 1,
			last_seen         = now()
		RETURNING id, use_count, first_seen, last_seen
	`
	err := q.db.QueryRow(ctx, query,
		alias.ID, alias.SupplierID, alias.ExternalKey, alias.ExternalName,
		alias.Item.Kind, alias.Item.ID,
		alias.SupplierUnit, alias.InternalUnit, alias.Conversion, alias.Confidence,
	).Scan(&alias.ID, &alias.UseCount, &alias.FirstSeen, &alias.LastSeen)
	if err != nil {
		return false, err
	}
	return alias.UseCount == 1, nil
}

func (q *queries) UpsertPriceSnapshot(ctx context.Context, snap *PriceSnapshot) (bool, error) {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	// Two partial unique indexes key the snapshot: by item when linked, by
	// source name when not. ON CONFLICT needs the matching index inference.
	conflict := `(supplier_id, version_id, item_kind, item_id, price_type) WHERE item_id IS NOT NULL`
	if snap.ItemID == nil {
		conflict = `(supplier_id, version_id, item_kind, source_name, price_type) WHERE item_id IS NULL`
	}

	query := fmt.Sprintf(`
		INSERT INTO price_snapshots (
			id, supplier_id, version_id, item_kind, item_id, source_name,
			source_key, source_price, source_unit, internal_unit,
			conversion_factor, price_per_unit, currency, price_type,
			source_row, confidence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT %s DO UPDATE SET
			source_name       = EXCLUDED.source_name,
			source_key        = EXCLUDED.source_key,
			source_price      = EXCLUDED.source_price,
			source_unit       = EXCLUDED.source_unit,
			internal_unit     = EXCLUDED.internal_unit,
			conversion_factor = EXCLUDED.conversion_factor,
			price_per_unit    = EXCLUDED.price_per_unit,
			currency          = EXCLUDED.currency,
			source_row        = EXCLUDED.source_row,
			confidence        = EXCLUDED.confidence
		RETURNING id, (xmax = 0) AS inserted
	`, conflict)

	var inserted bool
	err := q.db.QueryRow(ctx, query,
		snap.ID, snap.SupplierID, snap.VersionID, snap.ItemKind, snap.ItemID,
		snap.SourceName, snap.SourceKey, snap.SourcePrice, snap.SourceUnit,
		snap.InternalUnit, snap.Conversion, snap.PricePerUnit, snap.Currency,
		snap.PriceType, snap.SourceRow, snap.Confidence,
	).Scan(&snap.ID, &inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (q *queries) ActivateVersion(ctx context.Context, versionID uuid.UUID) error {
	var (
		supplierID uuid.UUID
		kind       ItemKind
		status     VersionStatus
	)
	err := q.db.QueryRow(ctx, `
		SELECT supplier_id, kind, status FROM price_list_versions
		WHERE id = $1
		FOR UPDATE
	`, versionID).Scan(&supplierID, &kind, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("activate version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if status == VersionActive {
		return nil
	}

	if _, err := q.db.Exec(ctx, `
		UPDATE price_list_versions SET status = 'archived'
		WHERE supplier_id = $1 AND kind = $2 AND status = 'active'
	`, supplierID, kind); err != nil {
		return fmt.Errorf("archive active version: %w", err)
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE price_list_versions SET status = 'active'
		WHERE id = $1 AND status <> 'active'
	`, versionID)
	if err != nil {
		return fmt.Errorf("activate version: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("activate version %s: concurrent status change", versionID)
	}
	return nil
}

func (s *PostgresStore) VersionByID(ctx context.Context, id uuid.UUID) (*PriceListVersion, error) {
	query := `
		SELECT id, supplier_id, kind, name, status, created_at
		FROM price_list_versions
		WHERE id = $1
	`
	var v PriceListVersion
	err := s.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.SupplierID, &v.Kind, &v.Name, &v.Status, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) CreateVersion(ctx context.Context, v *PriceListVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = VersionDraft
	}
	query := `
		INSERT INTO price_list_versions (id, supplier_id, kind, name, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return s.db.QueryRow(ctx, query, v.ID, v.SupplierID, v.Kind, v.Name, v.Status).Scan(&v.CreatedAt)
}

func (s *PostgresStore) CreateSupplier(ctx context.Context, sup *Supplier) error {
	if sup.ID == uuid.Nil {
		sup.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO suppliers (id, name) VALUES ($1, $2)`, sup.ID, sup.Name)
	return err
}

func (s *PostgresStore) SupplierByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	var sup Supplier
	err := s.db.QueryRow(ctx, `SELECT id, name FROM suppliers WHERE id = $1`, id).Scan(&sup.ID, &sup.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *PostgresStore) ItemPrices(ctx context.Context, kind ItemKind, itemID uuid.UUID) ([]PriceSnapshot, error) {
	query := `
		SELECT p.id, p.supplier_id, p.version_id, p.item_kind, p.item_id,
		       p.source_name, p.source_key, p.source_price, p.source_unit,
		       p.internal_unit, p.conversion_factor, p.price_per_unit,
		       p.currency, p.price_type, p.source_row, p.confidence, p.created_at
		FROM price_snapshots p
		JOIN price_list_versions v ON v.id = p.version_id
		WHERE p.item_kind = $1 AND p.item_id = $2 AND v.status = 'active'
	`

	rows, err := s.db.Query(ctx, query, kind, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []PriceSnapshot
	for rows.Next() {
		var sn PriceSnapshot
		if err := rows.Scan(
			&sn.ID, &sn.SupplierID, &sn.VersionID, &sn.ItemKind, &sn.ItemID,
			&sn.SourceName, &sn.SourceKey, &sn.SourcePrice, &sn.SourceUnit,
			&sn.InternalUnit, &sn.Conversion, &sn.PricePerUnit,
			&sn.Currency, &sn.PriceType, &sn.SourceRow, &sn.Confidence, &sn.CreatedAt,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}
