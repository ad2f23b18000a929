package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSubmissionFailureRate AlertType = "submission_failure_rate"
	AlertLowEnrichmentRate     AlertType = "low_enrichment_rate"
	AlertBreakerOpen           AlertType = "breaker_open"
)

// minSample is the number of submissions a rate needs before it can alert.
const minSample = 5

const alertSource = "leadform"

// Alert is the JSON body posted to the alert webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Source    string         `json:"source"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and reports an alert when its condition holds.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var rules = []rule{failureRateRule, enrichmentRateRule, breakerRule}

// Alerter turns lead metrics into alerts and posts them to a webhook.
type Alerter struct {
	cfg  config.MonitoringConfig
	http *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

// Evaluate runs every rule against snap.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var out []Alert
	for _, r := range rules {
		alert, ok := r(a.cfg, snap)
		if !ok {
			continue
		}
		alert.Source = alertSource
		alert.Timestamp = now
		out = append(out, alert)
	}
	return out
}

// failureRateRule fires when too many finished submissions were rejected by
// the downstream webhook.
func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	finished := snap.Submitted + snap.Failed
	if finished < minSample || snap.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertSubmissionFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of lead submissions failed in the last %dh (%d of %d, threshold %.1f%%)",
			snap.FailRate*100, snap.LookbackHours, snap.Failed, finished, cfg.FailureRateThreshold*100),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.Failed,
			"finished":     finished,
			"by_kind":      snap.ByKind,
		},
	}, true
}

// enrichmentRateRule fires when too few submissions carried company data.
// A zero minimum disables it.
func enrichmentRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if cfg.MinEnrichmentRate <= 0 || snap.SubmissionsTotal < minSample ||
		snap.EnrichmentRate >= cfg.MinEnrichmentRate {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertLowEnrichmentRate,
		Severity: "medium",
		Message: fmt.Sprintf("only %d of %d leads were enriched in the last %dh (%.1f%%, minimum %.1f%%)",
			snap.Enriched, snap.SubmissionsTotal, snap.LookbackHours,
			snap.EnrichmentRate*100, cfg.MinEnrichmentRate*100),
		Details: map[string]any{
			"enrichment_rate": snap.EnrichmentRate,
			"minimum":         cfg.MinEnrichmentRate,
			"enriched":        snap.Enriched,
			"total":           snap.SubmissionsTotal,
		},
	}, true
}

// breakerRule fires while any enrichment endpoint breaker is open.
func breakerRule(_ config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	var open []string
	for endpoint, state := range snap.Breakers {
		if state == "open" {
			open = append(open, endpoint)
		}
	}
	if len(open) == 0 {
		return Alert{}, false
	}
	sort.Strings(open)
	return Alert{
		Type:     AlertBreakerOpen,
		Severity: "high",
		Message:  "Enrichment breaker open: " + strings.Join(open, ", "),
		Details:  map[string]any{"endpoints": open},
	}, true
}

// SendAlerts posts each alert to the configured webhook and returns how many
// were accepted. Failures are logged and skipped.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	sent := 0
	for _, alert := range alerts {
		log := zap.L().With(zap.String("alert", string(alert.Type)), zap.String("severity", alert.Severity))
		if err := a.post(ctx, alert); err != nil {
			log.Error("alert delivery failed", zap.Error(err))
			continue
		}
		log.Info("alert delivered")
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: alert webhook status %d", resp.StatusCode)
	}
	return nil
}
