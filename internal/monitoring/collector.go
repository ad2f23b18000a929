package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
	"github.com/sells-group/leadform/internal/store"
)

// collectLimit caps how many submissions one snapshot scans.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of lead-capture health.
type MetricsSnapshot struct {
	// Submission metrics (within lookback window).
	SubmissionsTotal  int            `json:"submissions_total"`
	Submitted         int            `json:"submitted"`
	Failed            int            `json:"failed"`
	FailRate          float64        `json:"fail_rate"`
	Enriched          int            `json:"enriched"`
	EnrichmentRate    float64        `json:"enrichment_rate"`
	ByKind            map[string]int `json:"by_kind"`
	ByStage           map[string]int `json:"by_stage"`
	UniqueEmailDomain int            `json:"unique_email_domains"`

	// Resolver counters since process start.
	Enrichment *enrich.Stats     `json:"enrichment,omitempty"`
	Breakers   map[string]string `json:"breakers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ResolverStats abstracts the resolver methods the collector reads.
type ResolverStats interface {
	Stats() enrich.Stats
	Breakers() *resilience.Breakers
}

// Collector gathers metrics from the submission log and the resolver.
type Collector struct {
	store    store.Store
	resolver ResolverStats
	now      func() time.Time
}

// NewCollector creates a new metrics collector. resolver may be nil.
func NewCollector(st store.Store, resolver ResolverStats) *Collector {
	return &Collector{store: st, resolver: resolver, now: time.Now}
}

// Collect gathers a snapshot of lead-capture metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByKind:        make(map[string]int),
		ByStage:       make(map[string]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	subs, err := c.store.ListSubmissions(ctx, store.SubmissionFilter{
		Since: cutoff,
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list submissions")
	}

	domains := make(map[string]bool)
	snap.SubmissionsTotal = len(subs)
	for _, s := range subs {
		switch s.Status {
		case model.SubmissionSubmitted:
			snap.Submitted++
		case model.SubmissionFailed:
			snap.Failed++
		}
		if s.Enriched() {
			snap.Enriched++
		}
		snap.ByKind[string(s.Kind)]++
		if s.Stage != "" {
			snap.ByStage[string(s.Stage)]++
		}
		if d := model.EmailDomain(s.Email); d != "" {
			domains[d] = true
		}
	}
	snap.UniqueEmailDomain = len(domains)

	if finished := snap.Submitted + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.SubmissionsTotal > 0 {
		snap.EnrichmentRate = float64(snap.Enriched) / float64(snap.SubmissionsTotal)
	}

	if c.resolver != nil {
		stats := c.resolver.Stats()
		snap.Enrichment = &stats
		if b := c.resolver.Breakers(); b != nil {
			states := b.States()
			snap.Breakers = make(map[string]string, len(states))
			for name, st := range states {
				snap.Breakers[name] = st.String()
			}
		}
	}

	return snap, nil
}
