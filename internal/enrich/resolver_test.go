package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
)

type lookupFunc func(ctx context.Context, key string) (*model.CompanyProfile, error)

type fakeClient struct {
	person, domain           lookupFunc
	personCalls, domainCalls atomic.Int32
}

func (f *fakeClient) Person(ctx context.Context, email string) (*model.CompanyProfile, error) {
	f.personCalls.Add(1)
	if f.person == nil {
		return nil, nil
	}
	return f.person(ctx, email)
}

func (f *fakeClient) Domain(ctx context.Context, domain string) (*model.CompanyProfile, error) {
	f.domainCalls.Add(1)
	if f.domain == nil {
		return nil, nil
	}
	return f.domain(ctx, domain)
}

func returns(p *model.CompanyProfile, err error) lookupFunc {
	return func(context.Context, string) (*model.CompanyProfile, error) { return p, err }
}

func blocks() lookupFunc {
	return func(ctx context.Context, _ string) (*model.CompanyProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

type memCache struct {
	mu sync.Mutex
	m  map[string]*model.CompanyProfile
}

func (c *memCache) GetCachedCompany(_ context.Context, email string) (*model.CompanyProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[email], nil
}

func (c *memCache) SetCachedCompany(_ context.Context, email string, p *model.CompanyProfile, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]*model.CompanyProfile)
	}
	c.m[email] = p
	return nil
}

var (
	acmePerson = &model.CompanyProfile{Size: "11-50 employees", Funding: 2e6}
	acmeDomain = &model.CompanyProfile{Size: "51-200 employees", Funding: 20e6}
)

func TestResolve_FreeEmailSkipsNetwork(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: returns(acmePerson, nil), domain: returns(acmeDomain, nil)}
	r := New(fc)

	for _, email := range []string{"user@gmail.com", "User@GMAIL.com", "x@pm.me", "y@proton.me"} {
		p, err := r.Resolve(context.Background(), email)
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Zero(t, fc.personCalls.Load())
	assert.Zero(t, fc.domainCalls.Load())
	assert.Equal(t, int64(4), r.Stats().FreeSkipped)
}

func TestResolve_PrefersPerson(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: returns(acmePerson, nil), domain: returns(acmeDomain, nil)}
	p, err := New(fc).Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmePerson, p)
}

func TestResolve_PrefersPersonEvenWhenDomainIsFaster(t *testing.T) {
	t.Parallel()
	slowPerson := func(ctx context.Context, _ string) (*model.CompanyProfile, error) {
		select {
		case <-time.After(30 * time.Millisecond):
			return acmePerson, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fc := &fakeClient{person: slowPerson, domain: returns(acmeDomain, nil)}
	p, err := New(fc).Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmePerson, p)
}

func TestResolve_PersonErrorFallsBackToDomain(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: returns(nil, errors.New("boom")), domain: returns(acmeDomain, nil)}
	r := New(fc)
	p, err := r.Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmeDomain, p)
	assert.Equal(t, int64(1), r.Stats().DomainHits)
	assert.Equal(t, int32(1), fc.personCalls.Load())
	assert.Equal(t, int32(1), fc.domainCalls.Load())
}

func TestResolve_PersonNoDataFallsBackToDomain(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: returns(nil, nil), domain: returns(acmeDomain, nil)}
	p, err := New(fc).Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmeDomain, p)
}

func TestResolve_PersonTimeoutFallsBackToDomain(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: blocks(), domain: returns(acmeDomain, nil)}
	start := time.Now()
	p, err := New(fc, WithTimeout(30*time.Millisecond)).Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmeDomain, p)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_BothMiss(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	r := New(fc)
	p, err := r.Resolve(context.Background(), "jane@acme.com")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrNoCompanyData)
	assert.Equal(t, int64(1), r.Stats().Misses)
}

func TestResolve_BothTimeOut(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{person: blocks(), domain: blocks()}
	_, err := New(fc, WithTimeout(20*time.Millisecond)).Resolve(context.Background(), "jane@acme.com")
	assert.ErrorIs(t, err, ErrNoCompanyData)
}

func TestResolve_InvalidEmail(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	_, err := New(fc).Resolve(context.Background(), "no-at-sign")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Zero(t, fc.personCalls.Load())
}

func TestResolve_RetriesTransient(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	flaky := func(context.Context, string) (*model.CompanyProfile, error) {
		if calls.Add(1) == 1 {
			return nil, resilience.Transient(errors.New("503"), 503)
		}
		return acmePerson, nil
	}
	fc := &fakeClient{person: flaky}
	r := New(fc, WithRetry(resilience.RetryPolicy{Attempts: 2, Backoff: time.Millisecond}))
	p, err := r.Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmePerson, p)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolve_OpenBreakerSkipsEndpoint(t *testing.T) {
	t.Parallel()
	breakers := resilience.NewBreakers(resilience.BreakerConfig{Failures: 1, Cooldown: time.Hour})
	fc := &fakeClient{
		person: returns(nil, resilience.Transient(errors.New("503"), 503)),
		domain: returns(acmeDomain, nil),
	}
	r := New(fc, WithBreakers(breakers), WithRetry(resilience.RetryPolicy{Attempts: 1}))

	_, err := r.Resolve(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, resilience.Open, breakers.For("person").State())

	p, err := r.Resolve(context.Background(), "john@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmeDomain, p)
	assert.Equal(t, int32(1), fc.personCalls.Load())
}

func TestResolve_PersonHitLeavesHalfOpenDomainBreaker(t *testing.T) {
	t.Parallel()
	breakers := resilience.NewBreakers(resilience.BreakerConfig{Failures: 1, Cooldown: 20 * time.Millisecond})
	fc := &fakeClient{domain: returns(nil, resilience.Transient(errors.New("503"), 503))}
	r := New(fc, WithBreakers(breakers), WithRetry(resilience.RetryPolicy{Attempts: 1}))

	_, err := r.Resolve(context.Background(), "jane@acme.com")
	require.ErrorIs(t, err, ErrNoCompanyData)
	domain := breakers.For("domain")
	require.Equal(t, resilience.Open, domain.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, resilience.HalfOpen, domain.State())

	// The person hit cancels the in-flight domain probe.
	fc.person = returns(acmePerson, nil)
	fc.domain = blocks()
	p, err := r.Resolve(context.Background(), "john@acme.com")
	require.NoError(t, err)
	assert.Equal(t, acmePerson, p)
	assert.Never(t, func() bool { return domain.State() == resilience.Closed },
		100*time.Millisecond, 5*time.Millisecond)
}

func TestResolve_Cache(t *testing.T) {
	t.Parallel()
	cache := &memCache{}
	fc := &fakeClient{person: returns(acmePerson, nil)}
	r := New(fc, WithCache(cache, time.Hour))

	for range 3 {
		p, err := r.Resolve(context.Background(), "jane@acme.com")
		require.NoError(t, err)
		assert.Equal(t, acmePerson, p)
	}
	assert.Equal(t, int32(1), fc.personCalls.Load())
	assert.Equal(t, int64(2), r.Stats().CacheHits)
}

func TestFreeEmailDomains(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 34, FreeEmailDomains())
	assert.True(t, IsFreeEmailDomain("googlemail.com"))
	assert.False(t, IsFreeEmailDomain("acme.com"))
}
