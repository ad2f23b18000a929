package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadform/internal/db"
	"github.com/sells-group/leadform/internal/model"
)

// PostgresStore persists submissions and the company cache in Postgres.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig tunes the pgx pool. Zero fields keep the defaults.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	defaultMaxConns = 10
	defaultMinConns = 2
)

// apply sets pool sizing and lifetimes on cfg.
func (p *PoolConfig) apply(cfg *pgxpool.Config) {
	cfg.MaxConns, cfg.MinConns = defaultMaxConns, defaultMinConns
	if p != nil && p.MaxConns > 0 {
		cfg.MaxConns = p.MaxConns
	}
	if p != nil && p.MinConns > 0 {
		cfg.MinConns = p.MinConns
	}
	cfg.MinConns = min(cfg.MinConns, cfg.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
}

const (
	sqlInsertSubmission = `INSERT INTO submissions (id, form_id, kind, email, first_name, last_name, redirect_path, company, stage, status, error, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	sqlSubmissionColumns = `id, form_id, kind, email, first_name, last_name, redirect_path, company, stage, status, error, fields, created_at`
	sqlGetSubmission     = `SELECT ` + sqlSubmissionColumns + ` FROM submissions WHERE id = $1`
	sqlGetCachedCompany  = `SELECT profile FROM company_cache WHERE email = $1 AND expires_at > now()`
	sqlSetCachedCompany  = `INSERT INTO company_cache (email, profile, cached_at, expires_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET profile = EXCLUDED.profile, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`
	sqlDeleteExpiredCompanies = `DELETE FROM company_cache WHERE expires_at <= now()`
)

// statements are prepared on every pooled connection.
var statements = map[string]string{
	"insert_submission":        sqlInsertSubmission,
	"get_submission":           sqlGetSubmission,
	"get_cached_company":       sqlGetCachedCompany,
	"set_cached_company":       sqlSetCachedCompany,
	"delete_expired_companies": sqlDeleteExpiredCompanies,
}

func prepareStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, query := range statements {
		if _, err := conn.Prepare(ctx, name, query); err != nil {
			return eris.Wrapf(err, "postgres: prepare %s", name)
		}
	}
	return nil
}

// NewPostgres connects a pool to connString and verifies it answers.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	poolCfg.apply(cfg)
	cfg.AfterConnect = prepareStatements

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	form_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	redirect_path TEXT NOT NULL DEFAULT '',
	company       JSONB,
	stage         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	fields        JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(email);

CREATE TABLE IF NOT EXISTS company_cache (
	email      TEXT PRIMARY KEY,
	profile    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_company_cache_expires_at ON company_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSubmission(ctx context.Context, sub model.Submission) error {
	company, fields, err := marshalSubmission(sub)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal submission")
	}
	_, err = s.pool.Exec(ctx, sqlInsertSubmission,
		sub.ID, sub.FormID, string(sub.Kind), sub.Email, sub.FirstName, sub.LastName, sub.RedirectPath,
		company, string(sub.Stage), string(sub.Status), sub.Error, fields, sub.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := scanPostgresSubmission(s.pool.QueryRow(ctx, sqlGetSubmission, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + sqlSubmissionColumns + ` FROM submissions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.FormID != "" {
		query += ` AND form_id = ` + arg(filter.FormID)
	}
	if filter.Email != "" {
		query += ` AND email = ` + arg(filter.Email)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ` + arg(filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanPostgresSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) GetCachedCompany(ctx context.Context, email string) (*model.CompanyProfile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlGetCachedCompany, cacheKey(email)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached company")
	}
	var p model.CompanyProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached company")
	}
	return &p, nil
}

func (s *PostgresStore) SetCachedCompany(ctx context.Context, email string, p *model.CompanyProfile, ttl time.Duration) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal company")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, sqlSetCachedCompany, cacheKey(email), data, now, now.Add(ttl))
	return eris.Wrap(err, "postgres: set cached company")
}

func (s *PostgresStore) DeleteExpiredCompanies(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, sqlDeleteExpiredCompanies)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired companies")
	}
	return int(tag.RowsAffected()), nil
}

func scanPostgresSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		sub     model.Submission
		company []byte
		fields  []byte
	)
	err := row.Scan(&sub.ID, &sub.FormID, &sub.Kind, &sub.Email, &sub.FirstName, &sub.LastName,
		&sub.RedirectPath, &company, &sub.Stage, &sub.Status, &sub.Error, &fields, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalSubmission(&sub, company, fields); err != nil {
		return nil, err
	}
	return &sub, nil
}
