package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadform/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

func errUnknownDriver(driver string) error {
	return eris.Errorf("store: unknown driver %q", driver)
}

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds so range filters compare numerically.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "leadform.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id            TEXT PRIMARY KEY,
	form_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	email         TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	redirect_path TEXT NOT NULL DEFAULT '',
	company       TEXT,
	stage         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	fields        TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS company_cache (
	email      TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(email);
CREATE INDEX IF NOT EXISTS idx_company_cache_expires_at ON company_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub model.Submission) error {
	company, fields, err := marshalSubmission(sub)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal submission")
	}
	var companyArg any
	if company != nil {
		companyArg = string(company)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, form_id, kind, email, first_name, last_name, redirect_path, company, stage, status, error, fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FormID, string(sub.Kind), sub.Email, sub.FirstName, sub.LastName, sub.RedirectPath,
		companyArg, string(sub.Stage), string(sub.Status), sub.Error, string(fields), sub.CreatedAt.UTC().UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
}

const sqliteSubmissionColumns = `id, form_id, kind, email, first_name, last_name, redirect_path, company, stage, status, error, fields, created_at`

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSubmissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSQLiteSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + sqliteSubmissionColumns + ` FROM submissions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.FormID != "" {
		query += ` AND form_id = ?`
		args = append(args, filter.FormID)
	}
	if filter.Email != "" {
		query += ` AND email = ?`
		args = append(args, filter.Email)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC().UnixMilli())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSQLiteSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) GetCachedCompany(ctx context.Context, email string) (*model.CompanyProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT profile FROM company_cache WHERE email = ? AND expires_at > ?`,
		cacheKey(email), s.now().UTC().UnixMilli(),
	)
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached company")
	}
	var p model.CompanyProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached company")
	}
	return &p, nil
}

func (s *SQLiteStore) SetCachedCompany(ctx context.Context, email string, p *model.CompanyProfile, ttl time.Duration) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal company")
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO company_cache (email, profile, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET profile = excluded.profile, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		cacheKey(email), string(data), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: set cached company")
}

func (s *SQLiteStore) DeleteExpiredCompanies(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM company_cache WHERE expires_at <= ?`, s.now().UTC().UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired companies")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func cacheKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func marshalSubmission(sub model.Submission) (company, fields []byte, err error) {
	if sub.Company != nil {
		if company, err = json.Marshal(sub.Company); err != nil {
			return nil, nil, err
		}
	}
	f := sub.Fields
	if f == nil {
		f = map[string]string{}
	}
	fields, err = json.Marshal(f)
	return company, fields, err
}

func unmarshalSubmission(sub *model.Submission, company, fields []byte) error {
	if len(company) > 0 {
		sub.Company = &model.CompanyProfile{}
		if err := json.Unmarshal(company, sub.Company); err != nil {
			return eris.Wrap(err, "unmarshal company")
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &sub.Fields); err != nil {
			return eris.Wrap(err, "unmarshal fields")
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSubmission(row scannable) (*model.Submission, error) {
	var (
		sub       model.Submission
		company   sql.NullString
		fields    string
		createdAt int64
	)
	err := row.Scan(&sub.ID, &sub.FormID, &sub.Kind, &sub.Email, &sub.FirstName, &sub.LastName,
		&sub.RedirectPath, &company, &sub.Stage, &sub.Status, &sub.Error, &fields, &createdAt)
	if err != nil {
		return nil, err
	}
	sub.CreatedAt = time.UnixMilli(createdAt).UTC()
	var companyJSON []byte
	if company.Valid {
		companyJSON = []byte(company.String)
	}
	if err := unmarshalSubmission(&sub, companyJSON, []byte(fields)); err != nil {
		return nil, err
	}
	return &sub, nil
}
