// Package resilience guards calls to the enrichment endpoints with a
// per-endpoint circuit breaker and bounded retries.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the position of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling the endpoint while its breaker is open.
var ErrOpen = eris.New("resilience: circuit open")

// BreakerConfig controls when a breaker trips and recovers.
type BreakerConfig struct {
	// Failures is the consecutive failure count that opens the breaker.
	Failures int
	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration
}

// Breaker is a consecutive-failure circuit breaker for one endpoint.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Zero config values fall back to
// 5 failures and a 30s cooldown.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the endpoint the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State reports the breaker position, promoting an expired open breaker to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Call runs fn unless the breaker is open. Only transient failures count
// against the breaker; a permanent error (bad request, no data) means the
// endpoint itself is healthy. A call abandoned by the caller's cancellation
// says nothing about the endpoint and is not recorded.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, ErrOpen
	}
	v, err := fn(ctx)
	if err == nil || !errors.Is(ctx.Err(), context.Canceled) {
		b.record(err)
	}
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return false
	}
	b.setState(HalfOpen)
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.setState(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.Failures {
		b.openedAt = b.now()
		b.setState(Open)
	}
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("endpoint", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Breakers is a lazily populated set of breakers keyed by endpoint name.
type Breakers struct {
	cfg BreakerConfig

	mu  sync.Mutex
	all map[string]*Breaker
}

// NewBreakers returns an empty breaker set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, all: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (s *Breakers) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.all[name]
	if !ok {
		b = NewBreaker(name, s.cfg)
		s.all[name] = b
	}
	return b
}

// States returns the current state of every known breaker.
func (s *Breakers) States() map[string]State {
	s.mu.Lock()
	list := make([]*Breaker, 0, len(s.all))
	for _, b := range s.all {
		list = append(list, b)
	}
	s.mu.Unlock()

	out := make(map[string]State, len(list))
	for _, b := range list {
		out[b.name] = b.State()
	}
	return out
}
