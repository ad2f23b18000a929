package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
	"github.com/sells-group/leadform/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	subs    []model.Submission
	listErr error
	filter  store.SubmissionFilter
}

func (m *mockStore) ListSubmissions(_ context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Submission
	for _, s := range m.subs {
		if !filter.Since.IsZero() && s.CreatedAt.Before(filter.Since) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered, nil
}

// Unused store methods satisfy the interface.
func (m *mockStore) SaveSubmission(context.Context, model.Submission) error { return nil }
func (m *mockStore) GetSubmission(context.Context, string) (*model.Submission, error) {
	return nil, nil
}
func (m *mockStore) GetCachedCompany(context.Context, string) (*model.CompanyProfile, error) {
	return nil, nil
}
func (m *mockStore) SetCachedCompany(context.Context, string, *model.CompanyProfile, time.Duration) error {
	return nil
}
func (m *mockStore) DeleteExpiredCompanies(context.Context) (int, error) { return 0, nil }
func (m *mockStore) Migrate(context.Context) error                       { return nil }
func (m *mockStore) Close() error                                        { return nil }

type mockResolver struct {
	stats    enrich.Stats
	breakers *resilience.Breakers
}

func (m *mockResolver) Stats() enrich.Stats            { return m.stats }
func (m *mockResolver) Breakers() *resilience.Breakers { return m.breakers }

func sub(id string, status model.SubmissionStatus, at time.Time) model.Submission {
	return model.Submission{
		ID:        id,
		FormID:    "talent",
		Kind:      model.FormTalent,
		Email:     "user" + id + "@acme.com",
		Status:    status,
		CreatedAt: at,
	}
}

func TestCollector_EmptyStore(t *testing.T) {
	st := &mockStore{}
	c := NewCollector(st, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.SubmissionsTotal)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.EnrichmentRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.Nil(t, snap.Enrichment)
	assert.Equal(t, collectLimit, st.filter.Limit)
}

func TestCollector_SubmissionMetrics(t *testing.T) {
	now := time.Now().UTC()
	enriched := sub("1", model.SubmissionSubmitted, now.Add(-time.Hour))
	enriched.Company = &model.CompanyProfile{Size: "51-200 employees", Funding: 12_000_000}
	enriched.Stage = model.StageGrowth
	general := sub("2", model.SubmissionSubmitted, now.Add(-2*time.Hour))
	general.Kind = model.FormGeneral
	general.Email = "user1@acme.com"
	failed := sub("3", model.SubmissionFailed, now.Add(-3*time.Hour))
	failed.Email = "ops@globex.io"
	// Outside lookback window.
	old := sub("4", model.SubmissionFailed, now.Add(-48*time.Hour))

	st := &mockStore{subs: []model.Submission{enriched, general, failed, old}}
	c := NewCollector(st, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.SubmissionsTotal)
	assert.Equal(t, 2, snap.Submitted)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, 1, snap.Enriched)
	assert.InDelta(t, 1.0/3.0, snap.EnrichmentRate, 0.001)
	assert.Equal(t, map[string]int{"talent": 2, "general": 1}, snap.ByKind)
	assert.Equal(t, map[string]int{"Growth": 1}, snap.ByStage)
	assert.Equal(t, 2, snap.UniqueEmailDomain)
}

func TestCollector_ResolverStats(t *testing.T) {
	breakers := resilience.NewBreakers(resilience.BreakerConfig{Failures: 1, Cooldown: time.Hour})
	breakers.For("domain")
	_, err := resilience.Call(context.Background(), breakers.For("person"), func(context.Context) (int, error) {
		return 0, resilience.Transient(errors.New("boom"), 503)
	})
	require.Error(t, err)

	r := &mockResolver{
		stats:    enrich.Stats{Requests: 10, PersonHits: 6, DomainHits: 2, Misses: 2},
		breakers: breakers,
	}
	c := NewCollector(&mockStore{}, r)
	snap, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)

	require.NotNil(t, snap.Enrichment)
	assert.Equal(t, int64(10), snap.Enrichment.Requests)
	assert.Equal(t, map[string]string{"person": "open", "domain": "closed"}, snap.Breakers)
}

func TestCollector_ListError(t *testing.T) {
	st := &mockStore{listErr: errors.New("db down")}
	c := NewCollector(st, nil)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list submissions")
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	c := NewCollector(&mockStore{}, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	snap, err := c.Collect(context.Background(), 6)
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.CollectedAt)
}
