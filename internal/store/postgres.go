package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/site-analyzer/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_records (
	business_account_id TEXT PRIMARY KEY,
	website_url         TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'not_started',
	profile             JSONB,
	error_message       TEXT NOT NULL DEFAULT '',
	last_analyzed_at    TIMESTAMPTZ,
	run_id              TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analyzed_pages (
	business_account_id TEXT NOT NULL,
	url                 TEXT NOT NULL,
	analyzed_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (business_account_id, url)
);

CREATE INDEX IF NOT EXISTS idx_analysis_records_status ON analysis_records(status);
CREATE INDEX IF NOT EXISTS idx_analyzed_pages_tenant ON analyzed_pages(business_account_id, analyzed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, tenant string) (*model.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT business_account_id, website_url, status, profile, error_message, last_analyzed_at, run_id, updated_at
		 FROM analysis_records WHERE business_account_id = $1`,
		tenant,
	)

	var rec model.AnalysisRecord
	var profileJSON []byte
	err := row.Scan(&rec.BusinessAccountID, &rec.WebsiteURL, &rec.Status,
		&profileJSON, &rec.ErrorMessage, &rec.LastAnalyzedAt, &rec.RunID, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", tenant)
	}

	if len(profileJSON) > 0 {
		var p model.StructuredProfile
		if err := json.Unmarshal(profileJSON, &p); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal profile %s", tenant)
		}
		rec.Profile = &p
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, tenant string, patch ProfilePatch) error {
	profileJSON, err := marshalProfile(patch.Profile)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_records (business_account_id, website_url, status, profile, error_message, last_analyzed_at, run_id, updated_at)
		 VALUES ($1, COALESCE($2, ''), COALESCE($3, 'pending'), $4, COALESCE($5, ''), $6, COALESCE($7, ''), now())
		 ON CONFLICT (business_account_id) DO UPDATE SET
			website_url      = COALESCE($2, analysis_records.website_url),
			status           = COALESCE($3, analysis_records.status),
			profile          = COALESCE($4, analysis_records.profile),
			error_message    = COALESCE($5, analysis_records.error_message),
			last_analyzed_at = COALESCE($6, analysis_records.last_analyzed_at),
			run_id           = COALESCE($7, analysis_records.run_id),
			updated_at       = now()
		 WHERE $8 = '' OR analysis_records.run_id = $8`,
		tenant, patch.WebsiteURL, statusArg(patch.Status), profileJSON,
		patch.ErrorMessage, patch.LastAnalyzedAt, patch.RunID, patch.IfRunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert profile %s", tenant)
	}
	if patch.IfRunID != "" && tag.RowsAffected() == 0 {
		return ErrStaleRun
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, tenant string, status model.AnalysisStatus, errorMessage, runID string) error {
	return s.UpsertProfile(ctx, tenant, ProfilePatch{
		Status:       &status,
		ErrorMessage: &errorMessage,
		IfRunID:      runID,
	})
}

func (s *PostgresStore) AppendAnalyzedPage(ctx context.Context, tenant, url string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyzed_pages (business_account_id, url, analyzed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (business_account_id, url) DO NOTHING`,
		tenant, url,
	)
	return eris.Wrapf(err, "postgres: append analyzed page %s", tenant)
}

func (s *PostgresStore) ListAnalyzedPages(ctx context.Context, tenant string) ([]model.AnalyzedPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT business_account_id, url, analyzed_at FROM analyzed_pages
		 WHERE business_account_id = $1 ORDER BY analyzed_at`,
		tenant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list analyzed pages %s", tenant)
	}
	defer rows.Close()

	var pages []model.AnalyzedPage
	for rows.Next() {
		var p model.AnalyzedPage
		if err := rows.Scan(&p.BusinessAccountID, &p.URL, &p.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analyzed page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: iterate analyzed pages")
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, tenant string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM analyzed_pages WHERE business_account_id = $1`, tenant); err != nil {
		return eris.Wrapf(err, "postgres: delete analyzed pages %s", tenant)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM analysis_records WHERE business_account_id = $1`, tenant); err != nil {
		return eris.Wrapf(err, "postgres: delete analysis record %s", tenant)
	}
	return nil
}

func marshalProfile(p *model.StructuredProfile) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal profile")
	}
	return b, nil
}

// statusArg converts an optional status to a nullable query argument.
func statusArg(s *model.AnalysisStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
