package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	Enrichment EnrichmentConfig        `yaml:"enrichment" mapstructure:"enrichment"`
	Webhook    WebhookConfig           `yaml:"webhook" mapstructure:"webhook"`
	Analytics  AnalyticsConfig         `yaml:"analytics" mapstructure:"analytics"`
	Forms      FormsConfig             `yaml:"forms" mapstructure:"forms"`
	Meeting    map[string]MeetingLinks `yaml:"meeting" mapstructure:"meeting"`
	Notion     NotionConfig            `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig        `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
	Batch      BatchConfig             `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Phone      PhoneConfig             `yaml:"phone" mapstructure:"phone"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EnrichmentConfig configures the company lookup endpoints.
type EnrichmentConfig struct {
	PersonURL        string  `yaml:"person_url" mapstructure:"person_url"`
	DomainURL        string  `yaml:"domain_url" mapstructure:"domain_url"`
	TimeoutMs        int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours    int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownS int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// Timeout returns the per-lookup timeout.
func (c EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheTTL returns how long resolved profiles stay cached.
func (c EnrichmentConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// WebhookConfig configures the form submission endpoint.
type WebhookConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// FailurePolicy is "keep-disabled" or "reenable".
	FailurePolicy string `yaml:"failure_policy" mapstructure:"failure_policy"`
}

// AnalyticsConfig configures event tracking.
type AnalyticsConfig struct {
	AmplitudeKey      string `yaml:"amplitude_key" mapstructure:"amplitude_key"`
	AmplitudeEndpoint string `yaml:"amplitude_endpoint" mapstructure:"amplitude_endpoint"`
	LogEvents         bool   `yaml:"log_events" mapstructure:"log_events"`
}

// FormsConfig locates form definitions.
type FormsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MeetingLinks holds the per-tier scheduling links for one page path.
type MeetingLinks struct {
	Growth     string `yaml:"growth" mapstructure:"growth"`
	Enterprise string `yaml:"enterprise" mapstructure:"enterprise"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	SinkTimeoutSec int      `yaml:"sink_timeout_secs" mapstructure:"sink_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BatchConfig configures batch enrichment.
type BatchConfig struct {
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups" mapstructure:"max_concurrent_lookups"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinEnrichmentRate    float64 `yaml:"min_enrichment_rate" mapstructure:"min_enrichment_rate"`
}

// PhoneConfig configures phone number validation.
type PhoneConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadform.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("server.session_ttl_mins", 60)
	v.SetDefault("server.sink_timeout_secs", 10)
	v.SetDefault("batch.max_concurrent_lookups", 5)
	v.SetDefault("enrichment.timeout_ms", 5000)
	v.SetDefault("enrichment.rate_limit", 10)
	v.SetDefault("enrichment.cache_ttl_hours", 24*7)
	v.SetDefault("enrichment.breaker_failures", 5)
	v.SetDefault("enrichment.breaker_cooldown_secs", 30)
	v.SetDefault("enrichment.retry_attempts", 2)
	v.SetDefault("webhook.timeout_secs", 15)
	v.SetDefault("webhook.failure_policy", "keep-disabled")
	v.SetDefault("analytics.amplitude_endpoint", "https://api2.amplitude.com/2/httpapi")
	v.SetDefault("forms.path", "forms.yaml")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("phone.region", "US")

	// Secrets and endpoints have no default but must be known to viper so
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"store.max_conns", "store.min_conns",
		"enrichment.person_url", "enrichment.domain_url",
		"webhook.url", "analytics.amplitude_key", "analytics.log_events",
		"notion.token", "notion.lead_db",
		"salesforce.client_id", "salesforce.username", "salesforce.key_path",
		"monitoring.enabled", "monitoring.webhook_url", "monitoring.min_enrichment_rate",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// DefaultAllowedOrigins are the site origins allowed to make credentialed
// cross-origin requests.
var DefaultAllowedOrigins = []string{"https://micro1.ai", "https://www.micro1.ai"}

// Validate checks the settings a command mode depends on. Mode is one of
// "serve", "enrich" or "batch".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Webhook.URL == "" {
			errs = append(errs, "webhook.url is required")
		}
		if c.Forms.Path == "" {
			errs = append(errs, "forms.path is required")
		}
		if slices.Contains(c.Server.AllowedOrigins, "*") {
			errs = append(errs, "server.allowed_origins cannot contain * with credentialed CORS")
		}
		errs = append(errs, c.validateEnrichment()...)
	case "enrich":
		errs = append(errs, c.validateEnrichment()...)
	case "batch":
		errs = append(errs, c.validateEnrichment()...)
		if c.Batch.MaxConcurrentLookups < 1 || c.Batch.MaxConcurrentLookups > 50 {
			errs = append(errs, "batch.max_concurrent_lookups must be between 1 and 50")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEnrichment() []string {
	var errs []string
	if c.Enrichment.PersonURL == "" && c.Enrichment.DomainURL == "" {
		errs = append(errs, "enrichment.person_url or enrichment.domain_url is required")
	}
	if c.Enrichment.TimeoutMs <= 0 {
		errs = append(errs, "enrichment.timeout_ms must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
