package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSubmission(id string, created time.Time) model.Submission {
	return model.Submission{
		ID:           id,
		FormID:       "talent-main",
		Kind:         model.FormTalent,
		Email:        "jane@acme.com",
		FirstName:    "Jane",
		LastName:     "Doe",
		RedirectPath: "/thank-you",
		Company:      &model.CompanyProfile{Size: "11-50 employees", Funding: 4e6},
		Stage:        model.StageEarly,
		Status:       model.SubmissionSubmitted,
		Fields:       map[string]string{"talent-skills": "Go"},
		CreatedAt:    created,
	}
}

// --- Submissions ---

func TestSQLite_SaveAndGetSubmission(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveSubmission(ctx, testSubmission("s1", created)))

	got, err := st.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, testSubmission("s1", created), *got)
}

func TestSQLite_GetSubmission_NotFound(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)

	_, err := st.GetSubmission(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveSubmission_WithoutCompany(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := testSubmission("s1", time.Now().UTC().Truncate(time.Millisecond))
	sub.Company = nil
	sub.Fields = nil
	sub.Status = model.SubmissionFailed
	sub.Error = "webhook: rejected"
	require.NoError(t, st.SaveSubmission(ctx, sub))

	got, err := st.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got.Company)
	assert.Empty(t, got.Fields)
	assert.Equal(t, model.SubmissionFailed, got.Status)
	assert.Equal(t, "webhook: rejected", got.Error)
}

func TestSQLite_SaveSubmission_DuplicateID(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSubmission(ctx, testSubmission("dup", time.Now())))
	assert.Error(t, st.SaveSubmission(ctx, testSubmission("dup", time.Now())))
}

func TestSQLite_ListSubmissions(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		sub := testSubmission(id, base.Add(time.Duration(i)*time.Hour))
		if id == "c" {
			sub.Status = model.SubmissionFailed
			sub.FormID = "general-main"
		}
		require.NoError(t, st.SaveSubmission(ctx, sub))
	}

	all, err := st.ListSubmissions(ctx, SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	failed, err := st.ListSubmissions(ctx, SubmissionFilter{Status: model.SubmissionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c", failed[0].ID)

	byForm, err := st.ListSubmissions(ctx, SubmissionFilter{FormID: "talent-main"})
	require.NoError(t, err)
	assert.Len(t, byForm, 3)

	since, err := st.ListSubmissions(ctx, SubmissionFilter{Since: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	page, err := st.ListSubmissions(ctx, SubmissionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)

	none, err := st.ListSubmissions(ctx, SubmissionFilter{Email: "nobody@acme.com"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- Company cache ---

func TestSQLite_CompanyCache_SetAndGet(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	p := &model.CompanyProfile{Size: "51-200 employees", Funding: 12e6, LinkedIn: "https://linkedin.com/company/acme"}

	require.NoError(t, st.SetCachedCompany(ctx, "Jane@Acme.com", p, time.Hour))

	got, err := st.GetCachedCompany(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSQLite_CompanyCache_Overwrite(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedCompany(ctx, "jane@acme.com", &model.CompanyProfile{Size: "1-10"}, time.Hour))
	require.NoError(t, st.SetCachedCompany(ctx, "jane@acme.com", &model.CompanyProfile{Funding: 9e6}, time.Hour))

	got, err := st.GetCachedCompany(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, &model.CompanyProfile{Funding: 9e6}, got, "profiles are replaced, not merged")
}

func TestSQLite_CompanyCache_MissingAndNil(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetCachedCompany(ctx, "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, st.SetCachedCompany(ctx, "nobody@acme.com", nil, time.Hour))
	got, err = st.GetCachedCompany(ctx, "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_CompanyCache_Expired(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedCompany(ctx, "old@acme.com", &model.CompanyProfile{Size: "1-10"}, -time.Hour))
	require.NoError(t, st.SetCachedCompany(ctx, "new@acme.com", &model.CompanyProfile{Size: "1-10"}, time.Hour))

	got, err := st.GetCachedCompany(ctx, "old@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = st.GetCachedCompany(ctx, "new@acme.com")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLite_CompanyCache_ClockControlsExpiry(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	require.NoError(t, st.SetCachedCompany(ctx, "jane@acme.com", &model.CompanyProfile{Size: "1-10"}, time.Hour))

	now = now.Add(59 * time.Minute)
	got, err := st.GetCachedCompany(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = st.GetCachedCompany(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()
	st, err := Open(context.Background(), Config{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
}
