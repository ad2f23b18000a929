// Package enrich resolves a lead's email address to a company profile.
package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
	"github.com/sells-group/leadform/pkg/enrichapi"
)

// DefaultTimeout bounds each lookup independently.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNoCompanyData means neither lookup produced a usable profile.
	ErrNoCompanyData = eris.New("enrich: no company data found from either lookup")
	// ErrInvalidEmail means the address has no domain to look up.
	ErrInvalidEmail = eris.New("enrich: email has no domain")
)

// Cache stores resolved profiles keyed by email.
type Cache interface {
	GetCachedCompany(ctx context.Context, email string) (*model.CompanyProfile, error)
	SetCachedCompany(ctx context.Context, email string, p *model.CompanyProfile, ttl time.Duration) error
}

// Stats counts resolver outcomes since start.
type Stats struct {
	Requests    int64 `json:"requests"`
	FreeSkipped int64 `json:"free_skipped"`
	CacheHits   int64 `json:"cache_hits"`
	PersonHits  int64 `json:"person_hits"`
	DomainHits  int64 `json:"domain_hits"`
	Misses      int64 `json:"misses"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the per-lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCache caches resolved profiles for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// WithBreakers guards each endpoint with a breaker from s.
func WithBreakers(s *resilience.Breakers) Option {
	return func(r *Resolver) { r.breakers = s }
}

// WithRetry sets the retry policy applied inside each lookup's timeout.
func WithRetry(p resilience.RetryPolicy) Option {
	return func(r *Resolver) { r.retry = p }
}

// Resolver runs the person and domain lookups for an email.
type Resolver struct {
	client   enrichapi.Client
	cache    Cache
	cacheTTL time.Duration
	timeout  time.Duration
	breakers *resilience.Breakers
	retry    resilience.RetryPolicy

	requests, free, cacheHits, personHits, domainHits, misses atomic.Int64
}

// New creates a resolver over the lookup client.
func New(client enrichapi.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:   client,
		timeout:  DefaultTimeout,
		breakers: resilience.NewBreakers(resilience.BreakerConfig{}),
		retry:    resilience.DefaultRetry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Breakers exposes the per-endpoint breakers for monitoring.
func (r *Resolver) Breakers() *resilience.Breakers { return r.breakers }

// Stats returns a copy of the outcome counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Requests:    r.requests.Load(),
		FreeSkipped: r.free.Load(),
		CacheHits:   r.cacheHits.Load(),
		PersonHits:  r.personHits.Load(),
		DomainHits:  r.domainHits.Load(),
		Misses:      r.misses.Load(),
	}
}

type result struct {
	profile *model.CompanyProfile
	err     error
}

// Resolve returns the company profile for email. A consumer-provider address
// returns (nil, nil) without any lookup. Both lookups start together but the
// person result is always preferred; the domain result is only consulted
// when the person lookup fails or has no data. ErrNoCompanyData is returned
// when neither yields a profile. Callers treat every error as "no profile".
func (r *Resolver) Resolve(ctx context.Context, email string) (*model.CompanyProfile, error) {
	r.requests.Add(1)
	domain := model.EmailDomain(email)
	if domain == "" {
		return nil, ErrInvalidEmail
	}
	if IsFreeEmailDomain(domain) {
		r.free.Add(1)
		return nil, nil
	}

	if p := r.cached(ctx, email); p != nil {
		r.cacheHits.Add(1)
		return p, nil
	}

	// Cancelling on return aborts whichever lookup is no longer needed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	person := r.launch(ctx, "person", func(ctx context.Context) (*model.CompanyProfile, error) {
		return r.client.Person(ctx, email)
	})
	byDomain := r.launch(ctx, "domain", func(ctx context.Context) (*model.CompanyProfile, error) {
		return r.client.Domain(ctx, domain)
	})

	res := <-person
	if res.err == nil && res.profile != nil {
		r.personHits.Add(1)
		r.store(ctx, email, res.profile)
		return res.profile, nil
	}
	if res.err != nil {
		zap.L().Debug("enrich: person lookup failed, using domain lookup",
			zap.String("domain", domain), zap.Error(res.err))
	}

	res = <-byDomain
	if res.err == nil && res.profile != nil {
		r.domainHits.Add(1)
		r.store(ctx, email, res.profile)
		return res.profile, nil
	}
	if res.err != nil {
		zap.L().Debug("enrich: domain lookup failed", zap.String("domain", domain), zap.Error(res.err))
	}

	r.misses.Add(1)
	return nil, ErrNoCompanyData
}

// launch starts one lookup under its own timeout. The channel is buffered so
// an abandoned lookup never blocks.
func (r *Resolver) launch(ctx context.Context, endpoint string, fn func(context.Context) (*model.CompanyProfile, error)) <-chan result {
	ch := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		p, err := resilience.Call(ctx, r.breakers.For(endpoint), func(ctx context.Context) (*model.CompanyProfile, error) {
			return resilience.Retry(ctx, r.retry, endpoint, fn)
		})
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = eris.Wrapf(err, "enrich: %s lookup timed out after %s", endpoint, r.timeout)
		}
		ch <- result{profile: p, err: err}
	}()
	return ch
}

func (r *Resolver) cached(ctx context.Context, email string) *model.CompanyProfile {
	if r.cache == nil {
		return nil
	}
	p, err := r.cache.GetCachedCompany(ctx, email)
	if err != nil {
		zap.L().Warn("enrich: cache read failed", zap.Error(err))
		return nil
	}
	return p
}

func (r *Resolver) store(ctx context.Context, email string, p *model.CompanyProfile) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	if err := r.cache.SetCachedCompany(ctx, email, p, r.cacheTTL); err != nil {
		zap.L().Warn("enrich: cache write failed", zap.Error(err))
	}
}
