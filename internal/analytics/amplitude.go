package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/resilience"
)

const defaultAmplitudeURL = "https://api2.amplitude.com/2/httpapi"

// AmplitudeOption configures an Amplitude tracker.
type AmplitudeOption func(*Amplitude)

// WithEndpoint overrides the HTTP API URL (for testing or the EU region).
func WithEndpoint(u string) AmplitudeOption {
	return func(a *Amplitude) { a.endpoint = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) AmplitudeOption {
	return func(a *Amplitude) { a.http = hc }
}

// WithRetry sets the retry policy for 429 and 5xx responses.
func WithRetry(p resilience.RetryPolicy) AmplitudeOption {
	return func(a *Amplitude) { a.retry = p }
}

// Amplitude sends events to the Amplitude HTTP V2 API.
type Amplitude struct {
	apiKey   string
	endpoint string
	http     *http.Client
	retry    resilience.RetryPolicy
}

// NewAmplitude creates a tracker for the given project API key.
func NewAmplitude(apiKey string, opts ...AmplitudeOption) *Amplitude {
	a := &Amplitude{
		apiKey:   apiKey,
		endpoint: defaultAmplitudeURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		retry:    resilience.RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond, MaxDelay: 4 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type amplitudeEvent struct {
	UserID          string         `json:"user_id,omitempty"`
	DeviceID        string         `json:"device_id,omitempty"`
	EventType       string         `json:"event_type"`
	Time            int64          `json:"time,omitempty"`
	EventProperties map[string]any `json:"event_properties,omitempty"`
}

type amplitudeRequest struct {
	APIKey string           `json:"api_key"`
	Events []amplitudeEvent `json:"events"`
}

// Track posts a single event. Amplitude rejects events with neither a user
// nor a device id.
func (a *Amplitude) Track(ctx context.Context, ev Event) error {
	if ev.UserID == "" && ev.DeviceID == "" {
		return eris.Errorf("amplitude: event %q has no user or device id", ev.Type)
	}
	ae := amplitudeEvent{
		UserID:          ev.UserID,
		DeviceID:        ev.DeviceID,
		EventType:       ev.Type,
		EventProperties: ev.Properties,
	}
	if !ev.Time.IsZero() {
		ae.Time = ev.Time.UnixMilli()
	}
	body, err := json.Marshal(amplitudeRequest{APIKey: a.apiKey, Events: []amplitudeEvent{ae}})
	if err != nil {
		return eris.Wrap(err, "amplitude: marshal")
	}

	_, err = resilience.Retry(ctx, a.retry, "amplitude", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.post(ctx, body)
	})
	return err
}

func (a *Amplitude) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "amplitude: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := a.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "amplitude: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = eris.Errorf("amplitude: unexpected status %d: %s", resp.StatusCode, string(msg))
	if resilience.TransientStatus(resp.StatusCode) {
		return resilience.Transient(err, resp.StatusCode)
	}
	return err
}
