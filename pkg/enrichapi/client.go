// Package enrichapi provides a client for the person and domain company
// lookup endpoints.
package enrichapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
)

// noCompanyFound is the sentinel message both endpoints return on a miss.
const noCompanyFound = "no-company-found"

// Client defines the company lookup operations. Both return (nil, nil) when
// the endpoint has no data for the key.
type Client interface {
	// Person looks up the employer of a full email address.
	Person(ctx context.Context, email string) (*model.CompanyProfile, error)
	// Domain looks up the company owning a bare domain.
	Domain(ctx context.Context, domain string) (*model.CompanyProfile, error)
}

// Option configures the lookup client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second across both endpoints.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

type httpClient struct {
	personURL string
	domainURL string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a lookup client for the given endpoint URLs. Query
// parameters are appended to whatever the URLs already carry.
func NewClient(personURL, domainURL string, opts ...Option) Client {
	c := &httpClient{
		personURL: personURL,
		domainURL: domainURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Person(ctx context.Context, email string) (*model.CompanyProfile, error) {
	p, err := c.lookup(ctx, c.personURL, "email", email)
	return p, eris.Wrap(err, "enrichapi: person lookup")
}

func (c *httpClient) Domain(ctx context.Context, domain string) (*model.CompanyProfile, error) {
	p, err := c.lookup(ctx, c.domainURL, "domain", domain)
	return p, eris.Wrap(err, "enrichapi: domain lookup")
}

func (c *httpClient) lookup(ctx context.Context, endpoint, param, value string) (*model.CompanyProfile, error) {
	if endpoint == "" {
		return nil, eris.New("endpoint not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "parse endpoint")
	}
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := eris.Errorf("unexpected status %d", resp.StatusCode)
		if resilience.TransientStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, nil
	}
	return decodeProfile(body)
}

// payload is the lookup response. Providers disagree on whether funding is
// a number or a numeric string.
type payload struct {
	Message  string          `json:"message"`
	Size     string          `json:"size"`
	Funding  json.RawMessage `json:"funding"`
	LinkedIn string          `json:"linkedin"`
}

func decodeProfile(body []byte) (*model.CompanyProfile, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	if p.Message == noCompanyFound {
		return nil, nil
	}
	return &model.CompanyProfile{
		Size:     p.Size,
		Funding:  parseFunding(p.Funding),
		LinkedIn: p.LinkedIn,
	}, nil
}

func parseFunding(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	n, _ = strconv.ParseFloat(s, 64)
	return n
}
