package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/config"
	"github.com/sells-group/leadform/internal/model"
)

func failingSubs(now time.Time) []model.Submission {
	return []model.Submission{
		sub("1", model.SubmissionFailed, now),
		sub("2", model.SubmissionFailed, now),
		sub("3", model.SubmissionFailed, now),
		sub("4", model.SubmissionSubmitted, now),
		sub("5", model.SubmissionSubmitted, now),
	}
}

func alertSink(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(&mockStore{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RunChecksImmediately(t *testing.T) {
	srv, received := alertSink(t)
	cfg := config.MonitoringConfig{
		WebhookURL:           srv.URL,
		CheckIntervalSecs:    3600,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	st := &mockStore{subs: failingSubs(time.Now().UTC())}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go checker.Run(ctx)

	assert.Eventually(t, func() bool { return received.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)

	// A cancelled context returns without checking.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	srv, received := alertSink(t)
	cfg := config.MonitoringConfig{
		WebhookURL:           srv.URL,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	st := &mockStore{subs: failingSubs(time.Now().UTC())}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), cfg)

	checker.check(context.Background(), zap.NewNop())
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, []AlertType{AlertSubmissionFailureRate}, checker.Firing())
}

func TestChecker_EdgeTriggered(t *testing.T) {
	srv, received := alertSink(t)
	cfg := config.MonitoringConfig{
		WebhookURL:           srv.URL,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	now := time.Now().UTC()
	st := &mockStore{subs: failingSubs(now)}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), cfg)
	clock := now
	checker.now = func() time.Time { return clock }
	ctx := context.Background()

	checker.check(ctx, zap.NewNop())
	checker.check(ctx, zap.NewNop())
	assert.Equal(t, int32(1), received.Load(), "still firing, not resent")

	clock = clock.Add(reminderAfter)
	checker.check(ctx, zap.NewNop())
	assert.Equal(t, int32(2), received.Load(), "reminder after the repeat window")

	st.subs = nil
	checker.check(ctx, zap.NewNop())
	assert.Empty(t, checker.Firing())

	st.subs = failingSubs(now)
	checker.check(ctx, zap.NewNop())
	assert.Equal(t, int32(3), received.Load(), "fires again after resolving")
}

func TestChecker_CheckCollectError(t *testing.T) {
	st := &mockStore{listErr: errors.New("db down")}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), cfg)

	checker.check(context.Background(), zap.NewNop())
	assert.Empty(t, checker.Firing())
}
