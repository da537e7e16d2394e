package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-analyzer/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func statusPtr(s model.AnalysisStatus) *model.AnalysisStatus { return &s }

func strPtr(s string) *string { return &s }

func TestSQLiteGetProfile_Absent(t *testing.T) {
	st := newTestSQLite(t)

	rec, err := st.GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteUpsertAndGet(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	profile := &model.StructuredProfile{
		BusinessName: "Acme",
		MainServices: []string{"Repairs"},
		ContactInfo:  model.ContactInfo{Email: "hi@acme.test"},
	}

	err := st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		WebsiteURL:     strPtr("https://acme.test"),
		Status:         statusPtr(model.StatusCompleted),
		Profile:        profile,
		LastAnalyzedAt: &now,
		RunID:          strPtr("run-1"),
	})
	require.NoError(t, err)

	rec, err := st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "https://acme.test", rec.WebsiteURL)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	require.NotNil(t, rec.Profile)
	assert.Equal(t, "Acme", rec.Profile.BusinessName)
	assert.Equal(t, []string{"Repairs"}, rec.Profile.MainServices)
	require.NotNil(t, rec.LastAnalyzedAt)
}

func TestSQLiteUpsert_PartialPatchKeepsFields(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		WebsiteURL: strPtr("https://acme.test"),
		Status:     statusPtr(model.StatusPending),
		RunID:      strPtr("run-1"),
	}))

	// Status-only update must not blank the website URL or run id.
	require.NoError(t, st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		Status: statusPtr(model.StatusAnalyzing),
	}))

	rec, err := st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzing, rec.Status)
	assert.Equal(t, "https://acme.test", rec.WebsiteURL)
	assert.Equal(t, "run-1", rec.RunID)
}

func TestSQLiteUpsert_StaleRunRejected(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		Status: statusPtr(model.StatusAnalyzing),
		RunID:  strPtr("run-2"),
	}))

	// A writer holding the superseded run id cannot update the record.
	err := st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		Status:  statusPtr(model.StatusCompleted),
		IfRunID: "run-1",
	})
	assert.ErrorIs(t, err, ErrStaleRun)

	rec, err := st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzing, rec.Status)

	// The current run can.
	require.NoError(t, st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		Status:  statusPtr(model.StatusCompleted),
		IfRunID: "run-2",
	}))

	rec, err = st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestSQLiteSetStatus(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.SetStatus(ctx, "tenant-1", model.StatusFailed, "the website took too long to respond (timeout)", ""))

	rec, err := st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "timeout")
}

func TestSQLiteAnalyzedPages(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.AppendAnalyzedPage(ctx, "tenant-1", "https://acme.test"))
	require.NoError(t, st.AppendAnalyzedPage(ctx, "tenant-1", "https://acme.test/about"))
	// Idempotent on the same URL.
	require.NoError(t, st.AppendAnalyzedPage(ctx, "tenant-1", "https://acme.test"))
	// Other tenants are isolated.
	require.NoError(t, st.AppendAnalyzedPage(ctx, "tenant-2", "https://other.test"))

	pages, err := st.ListAnalyzedPages(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://acme.test", pages[0].URL)
	assert.Equal(t, "https://acme.test/about", pages[1].URL)
}

func TestSQLiteDeleteAnalysis(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertProfile(ctx, "tenant-1", ProfilePatch{
		Status: statusPtr(model.StatusCompleted),
	}))
	require.NoError(t, st.AppendAnalyzedPage(ctx, "tenant-1", "https://acme.test"))

	require.NoError(t, st.DeleteAnalysis(ctx, "tenant-1"))

	rec, err := st.GetProfile(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	pages, err := st.ListAnalyzedPages(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Empty(t, pages)
}
