// Package store persists analysis records and the analyzed-pages log.
// Every operation is scoped to a single business account; the store never
// queries across tenants.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/site-analyzer/internal/model"
)

// ErrStaleRun is returned when a patch conditioned on a run ID lost the
// race: a newer run has claimed the record, and the write was dropped.
var ErrStaleRun = errors.New("store: stale run, record claimed by a newer run")

// ProfilePatch describes a partial update to an AnalysisRecord. Nil fields
// are left untouched. When IfRunID is non-empty the update applies only
// while the record still carries that run ID.
type ProfilePatch struct {
	WebsiteURL     *string
	Status         *model.AnalysisStatus
	Profile        *model.StructuredProfile
	ErrorMessage   *string
	LastAnalyzedAt *time.Time
	RunID          *string
	IfRunID        string
}

// Store is the persistence collaborator for the analysis orchestrator.
type Store interface {
	// GetProfile returns the tenant's record, or (nil, nil) when absent.
	GetProfile(ctx context.Context, tenant string) (*model.AnalysisRecord, error)

	// UpsertProfile creates or patches the tenant's record.
	UpsertProfile(ctx context.Context, tenant string, patch ProfilePatch) error

	// SetStatus updates status and error message. A non-empty runID makes
	// the write conditional; a stale write returns ErrStaleRun.
	SetStatus(ctx context.Context, tenant string, status model.AnalysisStatus, errorMessage, runID string) error

	// AppendAnalyzedPage records one scraped page. Idempotent per
	// (tenant, url).
	AppendAnalyzedPage(ctx context.Context, tenant, url string) error

	// ListAnalyzedPages returns the tenant's page log, oldest first.
	ListAnalyzedPages(ctx context.Context, tenant string) ([]model.AnalyzedPage, error)

	// DeleteAnalysis removes the tenant's record and page log
	// (delete-and-restart is the only sanctioned way to shrink a profile).
	DeleteAnalysis(ctx context.Context, tenant string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
