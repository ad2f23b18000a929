// Package webhook posts submitted form data to the downstream automation
// endpoint as multipart/form-data.
package webhook

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRejected is returned when the endpoint answers with a non-2xx status.
var ErrRejected = eris.New("webhook: submission rejected")

// Field is one form field in submission order.
type Field struct {
	Name  string
	Value string
}

// Payload is the ordered set of fields sent to the endpoint.
type Payload []Field

// Add appends a field.
func (p *Payload) Add(name, value string) {
	*p = append(*p, Field{Name: name, Value: value})
}

// Get returns the first value for name.
func (p Payload) Get(name string) (string, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Submitter delivers a payload.
type Submitter interface {
	Submit(ctx context.Context, p Payload) error
}

// Option configures the webhook client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client posts payloads to a single URL. Submissions are never retried.
type Client struct {
	url  string
	http *http.Client
}

// New creates a webhook client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{url: url, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts p once. Any 2xx is success; the response body is ignored.
func (c *Client) Submit(ctx context.Context, p Payload) error {
	if c.url == "" {
		return eris.New("webhook: url not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range p {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return eris.Wrapf(err, "webhook: write field %s", f.Name)
		}
	}
	if err := mw.Close(); err != nil {
		return eris.Wrap(err, "webhook: close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook: post")
	}
	defer resp.Body.Close()               //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body) // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zap.L().Warn("webhook: non-success status", zap.Int("status", resp.StatusCode))
		return eris.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	}
	return nil
}
