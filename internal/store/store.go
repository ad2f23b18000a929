// Package store persists the submission log and the company enrichment cache.
package store

import (
	"context"
	"time"

	"github.com/sells-group/leadform/internal/model"
)

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	Status model.SubmissionStatus `json:"status,omitempty"`
	FormID string                 `json:"form_id,omitempty"`
	Email  string                 `json:"email,omitempty"`
	Since  time.Time              `json:"since,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f SubmissionFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for lead capture.
type Store interface {
	// Submissions
	SaveSubmission(ctx context.Context, s model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)

	// Company cache, keyed by lowercased email
	GetCachedCompany(ctx context.Context, email string) (*model.CompanyProfile, error)
	SetCachedCompany(ctx context.Context, email string, p *model.CompanyProfile, ttl time.Duration) error
	DeleteExpiredCompanies(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes a store backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open returns the store selected by cfg.Driver ("sqlite" or "postgres").
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, errUnknownDriver(cfg.Driver)
	}
}
