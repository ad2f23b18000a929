// Package salesforce creates and updates Lead records through the Salesforce
// REST API.
package salesforce

import (
	"context"
	"maps"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce API operations the lead mirror uses.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// Creds are the JWT bearer credentials for a connected app.
type Creds struct {
	LoginURL  string
	Username  string
	ClientID  string
	RSAPem    string
	RateLimit float64
}

func (c Creds) validate() error {
	switch {
	case c.ClientID == "":
		return eris.New("sf: client id is required")
	case c.Username == "":
		return eris.New("sf: username is required")
	case c.RSAPem == "":
		return eris.New("sf: JWT private key is required")
	}
	return nil
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit caps API calls per second, with a burst of int(rps).
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// go-salesforce takes no context, so ctx only bounds the limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialised go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial authenticates with the JWT bearer flow and returns a rate-limited client.
func Dial(creds Creds) (Client, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: creds.RSAPem,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sf: JWT login as %s", creds.Username)
	}
	return NewClient(sf, WithRateLimit(creds.RateLimit)), nil
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	return nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return eris.Wrap(c.sf.Query(soql, out), "sf: query")
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	res, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrapf(err, "sf: insert %s", sObjectName)
	}
	if !res.Success {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return "", eris.Errorf("sf: insert %s failed: %s", sObjectName, strings.Join(msgs, "; "))
	}
	return res.Id, nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	record := maps.Clone(fields)
	if record == nil {
		record = make(map[string]any, 1)
	}
	record["Id"] = id
	return eris.Wrapf(c.sf.UpdateOne(sObjectName, record), "sf: update %s %s", sObjectName, id)
}
