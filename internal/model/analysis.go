package model

import (
	"net/url"
	"strings"
	"time"
)

// AnalysisStatus represents the current state of a tenant's website analysis.
type AnalysisStatus string

const (
	StatusNotStarted AnalysisStatus = "not_started"
	StatusPending    AnalysisStatus = "pending"
	StatusAnalyzing  AnalysisStatus = "analyzing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// AnalysisRecord tracks one tenant's website analysis. There is exactly one
// record per business account; completed and failed records re-enter
// analyzing on a new request.
type AnalysisRecord struct {
	BusinessAccountID string             `json:"business_account_id"`
	WebsiteURL        string             `json:"website_url"`
	Status            AnalysisStatus     `json:"status"`
	Profile           *StructuredProfile `json:"profile,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	LastAnalyzedAt    *time.Time         `json:"last_analyzed_at,omitempty"`
	// RunID stamps the in-flight run so a stale run cannot overwrite a
	// newer one's result.
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalyzedPage is one row of the append-only log of pages successfully
// scraped for a tenant. Display and audit only.
type AnalyzedPage struct {
	BusinessAccountID string    `json:"business_account_id"`
	URL               string    `json:"url"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// CandidateLink is a discovered same-origin link that matched one of the
// business-page keywords. Ephemeral, never persisted.
type CandidateLink struct {
	URL            string `json:"url"`
	MatchedKeyword string `json:"matched_keyword"`
}

// NormalizeURL canonicalizes a page URL for the analyzed-pages log:
// lower-cased, trailing slash stripped. Falls back to plain string
// normalization when the URL does not parse.
func NormalizeURL(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	u, err := url.Parse(lowered)
	if err != nil {
		return strings.TrimSuffix(lowered, "/")
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}
