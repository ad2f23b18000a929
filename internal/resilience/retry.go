package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often and how quickly a transient failure is retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

// DefaultRetry suits the enrichment lookups: their whole budget is a few
// seconds, so retries are short.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Attempts: 2, Backoff: 200 * time.Millisecond, MaxDelay: time.Second}
}

// Retry calls fn until it succeeds, returns a non-transient error, the
// attempts run out, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, label string, fn func(context.Context) (T, error)) (T, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	var (
		v   T
		err error
	)
	for attempt := 1; ; attempt++ {
		v, err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= p.Attempts || ctx.Err() != nil {
			return v, err
		}

		wait := p.delay(attempt)
		zap.L().Debug("resilience: retrying",
			zap.String("call", label),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, err
		case <-t.C:
		}
	}
}

// delay doubles the backoff per attempt, caps it, and adds up to 25% jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int64N(int64(d)/4+1))
}
