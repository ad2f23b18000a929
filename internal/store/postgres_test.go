package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var submissionColumns = []string{
	"id", "form_id", "kind", "email", "first_name", "last_name", "redirect_path",
	"company", "stage", "status", "error", "fields", "created_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS submissions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := testSubmission("s1", created)

	mock.ExpectExec(`INSERT INTO submissions`).
		WithArgs("s1", "talent-main", "talent", "jane@acme.com", "Jane", "Doe", "/thank-you",
			[]byte(`{"size":"11-50 employees","funding":4000000}`), "Early Stage", "submitted", "",
			[]byte(`{"talent-skills":"Go"}`), created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSubmission(context.Background(), sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSubmission_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO submissions`).
		WillReturnError(errors.New("duplicate key"))

	err := s.SaveSubmission(context.Background(), testSubmission("s1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert submission s1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM submissions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(submissionColumns).AddRow(
			"s1", "talent-main", "talent", "jane@acme.com", "Jane", "Doe", "/thank-you",
			[]byte(`{"size":"11-50 employees","funding":4000000}`), "Early Stage", "submitted", "",
			[]byte(`{"talent-skills":"Go"}`), created,
		))

	got, err := s.GetSubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, testSubmission("s1", created), *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubmission_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM submissions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSubmission(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSubmissions_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`AND status = \$1 AND form_id = \$2 AND created_at >= \$3 ORDER BY created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("failed", "general-main", since, 10, 20).
		WillReturnRows(pgxmock.NewRows(submissionColumns).AddRow(
			"s9", "general-main", "general", "joe@acme.com", "", "", "/contact-thanks",
			nil, "Early Stage", "failed", "webhook: rejected", []byte(`{}`), since.Add(time.Hour),
		))

	subs, err := s.ListSubmissions(context.Background(), SubmissionFilter{
		Status: model.SubmissionFailed,
		FormID: "general-main",
		Since:  since,
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s9", subs[0].ID)
	assert.Nil(t, subs[0].Company)
	assert.Equal(t, "webhook: rejected", subs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSubmissions_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE 1=1 ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(submissionColumns))

	subs, err := s.ListSubmissions(context.Background(), SubmissionFilter{})
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT profile FROM company_cache`).
		WithArgs("jane@acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"profile"}).AddRow([]byte(`{"size":"1-10","funding":2500000}`)))

	got, err := s.GetCachedCompany(context.Background(), " Jane@Acme.com ")
	require.NoError(t, err)
	assert.Equal(t, &model.CompanyProfile{Size: "1-10", Funding: 2.5e6}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedCompany_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT profile FROM company_cache`).
		WithArgs("unknown@acme.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetCachedCompany(context.Background(), "unknown@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedCompany_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("jane@acme.com", []byte(`{"size":"1-10"}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedCompany(context.Background(), "jane@acme.com", &model.CompanyProfile{Size: "1-10"}, 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM company_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolConfig_Apply(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://leadform@localhost:5432/leadform")
	require.NoError(t, err)

	var none *PoolConfig
	none.apply(cfg)
	assert.Equal(t, int32(defaultMaxConns), cfg.MaxConns)
	assert.Equal(t, int32(defaultMinConns), cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)

	(&PoolConfig{MaxConns: 4, MinConns: 8}).apply(cfg)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(4), cfg.MinConns, "min is capped at max")
}

func TestNewPostgres_BadDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), "://not a dsn", nil)
	assert.ErrorContains(t, err, "postgres: parse dsn")
}
