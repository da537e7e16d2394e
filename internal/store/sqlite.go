package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/site-analyzer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suited to the
// one-shot CLI commands; the serve mode normally runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_records (
	business_account_id TEXT PRIMARY KEY,
	website_url         TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'not_started',
	profile             TEXT,
	error_message       TEXT NOT NULL DEFAULT '',
	last_analyzed_at    DATETIME,
	run_id              TEXT NOT NULL DEFAULT '',
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analyzed_pages (
	business_account_id TEXT NOT NULL,
	url                 TEXT NOT NULL,
	analyzed_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (business_account_id, url)
);

CREATE INDEX IF NOT EXISTS idx_analysis_records_status ON analysis_records(status);
CREATE INDEX IF NOT EXISTS idx_analyzed_pages_tenant ON analyzed_pages(business_account_id, analyzed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, tenant string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT business_account_id, website_url, status, profile, error_message, last_analyzed_at, run_id, updated_at
		 FROM analysis_records WHERE business_account_id = ?`,
		tenant,
	)

	var rec model.AnalysisRecord
	var profileJSON sql.NullString
	var lastAnalyzed sql.NullTime
	err := row.Scan(&rec.BusinessAccountID, &rec.WebsiteURL, &rec.Status,
		&profileJSON, &rec.ErrorMessage, &lastAnalyzed, &rec.RunID, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", tenant)
	}

	if lastAnalyzed.Valid {
		rec.LastAnalyzedAt = &lastAnalyzed.Time
	}
	if profileJSON.Valid && profileJSON.String != "" {
		var p model.StructuredProfile
		if err := json.Unmarshal([]byte(profileJSON.String), &p); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal profile %s", tenant)
		}
		rec.Profile = &p
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, tenant string, patch ProfilePatch) error {
	profileJSON, err := marshalProfile(patch.Profile)
	if err != nil {
		return err
	}
	var profileArg any
	if profileJSON != nil {
		profileArg = string(profileJSON)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_records (business_account_id, website_url, status, profile, error_message, last_analyzed_at, run_id, updated_at)
		 VALUES (?1, COALESCE(?2, ''), COALESCE(?3, 'pending'), ?4, COALESCE(?5, ''), ?6, COALESCE(?7, ''), ?9)
		 ON CONFLICT (business_account_id) DO UPDATE SET
			website_url      = COALESCE(?2, website_url),
			status           = COALESCE(?3, status),
			profile          = COALESCE(?4, profile),
			error_message    = COALESCE(?5, error_message),
			last_analyzed_at = COALESCE(?6, last_analyzed_at),
			run_id           = COALESCE(?7, run_id),
			updated_at       = ?9
		 WHERE ?8 = '' OR run_id = ?8`,
		tenant, strArg(patch.WebsiteURL), statusArg(patch.Status), profileArg,
		strArg(patch.ErrorMessage), timeArg(patch.LastAnalyzedAt), strArg(patch.RunID),
		patch.IfRunID, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert profile %s", tenant)
	}
	if patch.IfRunID != "" {
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return ErrStaleRun
		}
	}
	return nil
}

func (s *SQLiteStore) SetStatus(ctx context.Context, tenant string, status model.AnalysisStatus, errorMessage, runID string) error {
	return s.UpsertProfile(ctx, tenant, ProfilePatch{
		Status:       &status,
		ErrorMessage: &errorMessage,
		IfRunID:      runID,
	})
}

func (s *SQLiteStore) AppendAnalyzedPage(ctx context.Context, tenant, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyzed_pages (business_account_id, url, analyzed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (business_account_id, url) DO NOTHING`,
		tenant, url, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: append analyzed page %s", tenant)
}

func (s *SQLiteStore) ListAnalyzedPages(ctx context.Context, tenant string) ([]model.AnalyzedPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT business_account_id, url, analyzed_at FROM analyzed_pages
		 WHERE business_account_id = ? ORDER BY analyzed_at`,
		tenant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list analyzed pages %s", tenant)
	}
	defer rows.Close()

	var pages []model.AnalyzedPage
	for rows.Next() {
		var p model.AnalyzedPage
		if err := rows.Scan(&p.BusinessAccountID, &p.URL, &p.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analyzed page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: iterate analyzed pages")
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, tenant string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM analyzed_pages WHERE business_account_id = ?`, tenant); err != nil {
		return eris.Wrapf(err, "sqlite: delete analyzed pages %s", tenant)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_records WHERE business_account_id = ?`, tenant); err != nil {
		return eris.Wrapf(err, "sqlite: delete analysis record %s", tenant)
	}
	return nil
}

func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
