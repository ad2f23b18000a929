package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/analytics"
	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/leadsink"
	"github.com/sells-group/leadform/internal/meeting"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
	"github.com/sells-group/leadform/internal/store"
	"github.com/sells-group/leadform/internal/webhook"
	"github.com/sells-group/leadform/pkg/enrichapi"
	"github.com/sells-group/leadform/pkg/notion"
	sfpkg "github.com/sells-group/leadform/pkg/salesforce"
)

// appEnv holds the initialized store, clients, and collaborators shared by
// the serve and enrich commands.
type appEnv struct {
	Store    store.Store
	Resolver *enrich.Resolver
	Forms    map[string]model.Form
	Webhook  *webhook.Client
	Tracker  analytics.Tracker
	Sinks    *leadsink.Fanout
	Meeting  *meeting.Picker
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	var pool *store.PoolConfig
	if cfg.Store.MaxConns > 0 || cfg.Store.MinConns > 0 {
		pool = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
	}
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        pool,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initResolver(cache enrich.Cache) *enrich.Resolver {
	ec := cfg.Enrichment
	client := enrichapi.NewClient(ec.PersonURL, ec.DomainURL, enrichapi.WithRateLimit(ec.RateLimit))

	retry := resilience.DefaultRetry()
	if ec.RetryAttempts > 0 {
		retry.Attempts = ec.RetryAttempts
	}
	opts := []enrich.Option{
		enrich.WithTimeout(ec.Timeout()),
		enrich.WithRetry(retry),
		enrich.WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{
			Failures: ec.BreakerFailures,
			Cooldown: time.Duration(ec.BreakerCooldownS) * time.Second,
		})),
	}
	if cache != nil {
		opts = append(opts, enrich.WithCache(cache, ec.CacheTTL()))
	}
	return enrich.New(client, opts...)
}

func initTracker() analytics.Tracker {
	var trackers analytics.Multi
	if cfg.Analytics.AmplitudeKey != "" {
		trackers = append(trackers, analytics.NewAmplitude(cfg.Analytics.AmplitudeKey,
			analytics.WithEndpoint(cfg.Analytics.AmplitudeEndpoint),
		))
	}
	if cfg.Analytics.LogEvents || len(trackers) == 0 {
		trackers = append(trackers, analytics.LogTracker{})
	}
	if len(trackers) == 1 {
		return trackers[0]
	}
	return trackers
}

// initNotion returns nil when Notion is not configured.
func initNotion() leadsink.Sink {
	if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
		return nil
	}
	return leadsink.Notion{
		Client:     notion.NewClient(cfg.Notion.Token),
		DatabaseID: cfg.Notion.LeadDB,
	}
}

// initSalesforce returns nil when Salesforce is not configured.
func initSalesforce() (leadsink.Sink, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := sfpkg.Dial(sfpkg.Creds{
		LoginURL:  cfg.Salesforce.LoginURL,
		Username:  cfg.Salesforce.Username,
		ClientID:  cfg.Salesforce.ClientID,
		RSAPem:    string(pemData),
		RateLimit: cfg.Salesforce.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	return leadsink.Salesforce{Client: sf}, nil
}

func meetingLinks() map[string]meeting.Links {
	if len(cfg.Meeting) == 0 {
		return nil
	}
	out := make(map[string]meeting.Links, len(cfg.Meeting))
	for path, l := range cfg.Meeting {
		out[path] = meeting.Links{Growth: l.Growth, Enterprise: l.Enterprise}
	}
	return out
}

// initEnv sets up everything the API needs. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("serve"); err != nil {
		return nil, err
	}

	forms, err := model.LoadForms(cfg.Forms.Path)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	sf, err := initSalesforce()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sinks := leadsink.New(
		time.Duration(cfg.Server.SinkTimeoutSec)*time.Second,
		leadsink.Store{Store: st},
		initNotion(),
		sf,
	)

	env := &appEnv{
		Store:    st,
		Resolver: initResolver(st),
		Forms:    forms,
		Webhook: webhook.New(cfg.Webhook.URL, webhook.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Webhook.TimeoutSecs) * time.Second,
		})),
		Tracker: initTracker(),
		Sinks:   sinks,
		Meeting: meeting.NewPicker(meetingLinks()),
	}

	names := make([]string, 0, len(sinks.Sinks))
	for _, s := range sinks.Sinks {
		names = append(names, s.Name())
	}
	zap.L().Info("environment ready",
		zap.Int("forms", len(forms)),
		zap.String("store", cfg.Store.Driver),
		zap.Strings("sinks", names),
	)
	return env, nil
}
