package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute

	// reminderAfter is how long an alert may keep firing before it is sent again.
	reminderAfter = 6 * time.Hour
)

// Checker evaluates lead-flow health on an interval. Alerts are edge
// triggered: one is delivered when its condition starts firing, again as a
// reminder while it persists, and a resolution is logged when it clears.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	firing map[AlertType]time.Time // last delivery per firing alert
	now    func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		firing:    make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Firing returns the alert types currently in the firing state.
func (c *Checker) Firing() []AlertType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AlertType, 0, len(c.firing))
	for t := range c.firing {
		out = append(out, t)
	}
	return out
}

// Run checks once immediately, then on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().Named("monitoring")
	log.Info("alert checker running",
		zap.Duration("every", c.interval),
		zap.Int("window_hours", c.lookback),
	)
	if ctx.Err() != nil {
		return
	}
	c.check(ctx, log)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			c.check(ctx, log)
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Warn("collect lead metrics", zap.Error(err))
		return
	}

	due := c.transition(c.alerter.Evaluate(snap), log)
	if len(due) == 0 {
		return
	}
	sent := c.alerter.SendAlerts(ctx, due)
	log.Info("alerts delivered",
		zap.Int("due", len(due)),
		zap.Int("sent", sent),
		zap.Int("submissions", snap.SubmissionsTotal),
	)
}

// transition updates the firing set and returns the alerts to deliver now.
func (c *Checker) transition(alerts []Alert, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	seen := make(map[AlertType]bool, len(alerts))
	var due []Alert
	for _, a := range alerts {
		seen[a.Type] = true
		last, ok := c.firing[a.Type]
		if ok && now.Sub(last) < reminderAfter {
			continue
		}
		c.firing[a.Type] = now
		due = append(due, a)
	}
	for t := range c.firing {
		if !seen[t] {
			delete(c.firing, t)
			log.Info("alert resolved", zap.String("type", string(t)))
		}
	}
	return due
}
