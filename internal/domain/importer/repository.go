package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkravets/priceport/internal/domain/catalog"
)

// Repository persists import sessions. Sessions are audit records: they are
// updated in place through the lifecycle and never deleted.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Update(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// CompletedWithHash returns the id of a prior completed session with the
	// same content hash, supplier and kind, or nil.
	CompletedWithHash(ctx context.Context, hash string, supplierID *uuid.UUID, kind catalog.ItemKind) (*uuid.UUID, error)
	// Stale lists non-terminal sessions untouched since the cutoff, for the
	// maintenance sweep.
	Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// sessionPayload is the jsonb blob carrying the bulky parts of a session.
// Identity, status and the duplicate-detection key stay in real columns.
type sessionPayload struct {
	SheetNames []string      `json:"sheet_names,omitempty"`
	Mapping    ColumnMapping `json:"mapping,omitempty"`
	Rows       [][]string    `json:"rows"`
	Queue      []QueueItem   `json:"queue,omitempty"`
	Stats      Stats         `json:"stats"`
	PreSkipped int           `json:"pre_skipped,omitempty"`
	Result     *ExecResult   `json:"result,omitempty"`
}

// sessionDB is the slice of pgxpool.Pool the repository needs. Tests
// substitute a pgxmock pool.
type sessionDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores sessions in the import_sessions table.
type PostgresRepository struct {
	pool sessionDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func payloadOf(s *Session) ([]byte, error) {
	return json.Marshal(sessionPayload{
		SheetNames: s.SheetNames,
		Mapping:    s.Mapping,
		Rows:       s.Rows,
		Queue:      s.Queue,
		Stats:      s.Stats,
		PreSkipped: s.PreSkipped,
		Result:     s.Result,
	})
}

func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	payload, err := payloadOf(s)
	if err != nil {
		return fmt.Errorf("marshal session payload: %w", err)
	}

	query := `
		INSERT INTO import_sessions (
			id, user_id, supplier_id, version_id, kind, source, file_name,
			content_hash, sheet_index, header_row, status, error, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.SupplierID, s.VersionID, s.Kind, s.Source, s.FileName,
		s.ContentHash, s.SheetIndex, s.HeaderRow, s.Status, s.Error, payload,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *PostgresRepository) Update(ctx context.Context, s *Session) error {
	payload, err := payloadOf(s)
	if err != nil {
		return fmt.Errorf("marshal session payload: %w", err)
	}

	query := `
		UPDATE import_sessions SET
			supplier_id = $2, version_id = $3, header_row = $4, status = $5,
			error = $6, payload = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		s.ID, s.SupplierID, s.VersionID, s.HeaderRow, s.Status, s.Error, payload,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update session %s: %w", s.ID, ErrSessionNotFound)
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, user_id, supplier_id, version_id, kind, source, file_name,
		       content_hash, sheet_index, header_row, status, error, payload,
		       created_at, updated_at
		FROM import_sessions
		WHERE id = $1
	`

	var (
		s   Session
		raw []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.SupplierID, &s.VersionID, &s.Kind, &s.Source,
		&s.FileName, &s.ContentHash, &s.SheetIndex, &s.HeaderRow, &s.Status,
		&s.Error, &raw, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}

	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal session payload: %w", err)
	}
	s.SheetNames = p.SheetNames
	s.Mapping = p.Mapping
	s.Rows = p.Rows
	s.Queue = p.Queue
	s.Stats = p.Stats
	s.PreSkipped = p.PreSkipped
	s.Result = p.Result
	return &s, nil
}

func (r *PostgresRepository) CompletedWithHash(ctx context.Context, hash string, supplierID *uuid.UUID, kind catalog.ItemKind) (*uuid.UUID, error) {
	query := `
		SELECT id FROM import_sessions
		WHERE content_hash = $1 AND kind = $2 AND status = 'completed'
		  AND supplier_id IS NOT DISTINCT FROM $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, hash, kind, supplierID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *PostgresRepository) Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM import_sessions
		WHERE status IN ('created', 'mapping_required') AND updated_at < $1
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemRepository keeps sessions in memory for tests and local runs.
type MemRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewMemRepository() *MemRepository {
	return &MemRepository{sessions: make(map[uuid.UUID]*Session), now: time.Now}
}

func cloneSession(s *Session) *Session {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("session not serializable: %v", err))
	}
	var c Session
	if err := json.Unmarshal(raw, &c); err != nil {
		panic(fmt.Sprintf("session not round-trippable: %v", err))
	}
	return &c
}

func (r *MemRepository) Create(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = r.now()
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *MemRepository) Update(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return fmt.Errorf("update session %s: %w", s.ID, ErrSessionNotFound)
	}
	s.UpdatedAt = r.now()
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *MemRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return cloneSession(s), nil
}

func (r *MemRepository) CompletedWithHash(ctx context.Context, hash string, supplierID *uuid.UUID, kind catalog.ItemKind) (*uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Status != StatusCompleted || s.ContentHash != hash || s.Kind != kind {
			continue
		}
		if !sameID(s.SupplierID, supplierID) {
			continue
		}
		id := s.ID
		return &id, nil
	}
	return nil, nil
}

func (r *MemRepository) Stale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uuid.UUID
	for _, s := range r.sessions {
		if (s.Status == StatusCreated || s.Status == StatusMappingRequired) && s.UpdatedAt.Before(cutoff) {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
