package importer

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/priceport/internal/domain/catalog"
)

func fakeSession(t *testing.T) *Session {
	t.Helper()
	supplierID := uuid.New()
	return &Session{
		UserID:      uuid.New(),
		SupplierID:  &supplierID,
		Kind:        catalog.KindMaterials,
		Source:      SourcePaste,
		FileName:    gofakeit.Word() + ".csv",
		ContentHash: gofakeit.LetterN(64),
		HeaderRow:   0,
		Status:      StatusCreated,
		Rows: [][]string{
			{"Наименование", "Цена"},
			{gofakeit.ProductName(), "100"},
		},
	}
}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}
	sess := fakeSession(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO import_sessions`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), sess))
	assert.NotEqual(t, uuid.Nil, sess.ID, "create assigns an id")
	assert.Equal(t, now, sess.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryUpdateMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}
	sess := fakeSession(t)
	sess.ID = uuid.New()

	mock.ExpectQuery(`UPDATE import_sessions SET`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(pgx.ErrNoRows)

	err = repo.Update(context.Background(), sess)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	id := uuid.New()
	userID := uuid.New()
	supplierID := uuid.New()
	payload := []byte(`{"rows":[["a","b"]],"stats":{"total":1},"pre_skipped":2}`)
	now := time.Now()

	cols := []string{
		"id", "user_id", "supplier_id", "version_id", "kind", "source",
		"file_name", "content_hash", "sheet_index", "header_row", "status",
		"error", "payload", "created_at", "updated_at",
	}
	mock.ExpectQuery(`SELECT .+ FROM import_sessions`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			id, userID, &supplierID, (*uuid.UUID)(nil),
			catalog.KindOperations, SourceUpload,
			"прайс.xlsx", "deadbeef", 0, 2, StatusResolutionRequired,
			"", payload, now, now,
		))

	sess, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, supplierID, *sess.SupplierID)
	assert.Nil(t, sess.VersionID)
	assert.Equal(t, StatusResolutionRequired, sess.Status)
	assert.Equal(t, [][]string{{"a", "b"}}, sess.Rows)
	assert.Equal(t, 1, sess.Stats.Total)
	assert.Equal(t, 2, sess.PreSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	mock.ExpectQuery(`SELECT .+ FROM import_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresRepositoryCompletedWithHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	existing := uuid.New()
	mock.ExpectQuery(`SELECT id FROM import_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	id, err := repo.CompletedWithHash(context.Background(), "deadbeef", nil, catalog.KindMaterials)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, existing, *id)

	// No match is not an error.
	mock.ExpectQuery(`SELECT id FROM import_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	id, err = repo.CompletedWithHash(context.Background(), "cafebabe", nil, catalog.KindMaterials)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PostgresRepository{pool: mock}

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT id FROM import_sessions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := repo.Stale(context.Background(), time.Now().Add(-14*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
