// Package analyzer sequences the website analysis pipeline: guard,
// bounded fetch, page discovery, section extraction, and profile
// synthesis, persisting progress through the store so a tenant's record
// never sticks in analyzing.
package analyzer

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/site-analyzer/internal/crawlerr"
	"github.com/sells-group/site-analyzer/internal/discover"
	"github.com/sells-group/site-analyzer/internal/extract"
	"github.com/sells-group/site-analyzer/internal/fetch"
	"github.com/sells-group/site-analyzer/internal/model"
	"github.com/sells-group/site-analyzer/internal/netguard"
	"github.com/sells-group/site-analyzer/internal/store"
	"github.com/sells-group/site-analyzer/internal/synth"
)

// SynthesizerFactory builds a synthesizer for a per-tenant API key.
type SynthesizerFactory func(apiKey string) synth.Synthesizer

// Orchestrator runs website analyses. Pages within one run are scraped
// sequentially, never in parallel, so a slow or hostile page cannot eat
// the budget meant for the others and every failure is attributable.
type Orchestrator struct {
	store      store.Store
	synthFor   SynthesizerFactory
	guard      *netguard.URLGuard
	fetcher    *fetch.Fetcher
	robots     *discover.RobotsGate
	scrapeOpts fetch.Options
	maxPages   int
	singleRuns singleflight.Group
}

// Limits carries the configurable crawl budgets of one run.
type Limits struct {
	// ScrapeOptions bounds each page fetch whose text feeds the
	// synthesizer.
	ScrapeOptions fetch.Options
	// DiscoveryOptions bounds the cheaper robots.txt fetch.
	DiscoveryOptions fetch.Options
	// MaxPages caps how many discovered pages are scraped in addition to
	// the homepage.
	MaxPages int
}

// DefaultLimits returns the stock crawl budgets.
func DefaultLimits() Limits {
	return Limits{
		ScrapeOptions:    fetch.ScrapeOptions(),
		DiscoveryOptions: fetch.DiscoveryOptions(),
		MaxPages:         discover.MaxCandidates,
	}
}

// New creates an Orchestrator with the default crawl budgets. All
// collaborators are injected; the orchestrator holds no process-wide
// state.
func New(st store.Store, synthFor SynthesizerFactory, guard *netguard.URLGuard, fetcher *fetch.Fetcher) *Orchestrator {
	return NewWithLimits(st, synthFor, guard, fetcher, DefaultLimits())
}

// NewWithLimits creates an Orchestrator with caller-supplied crawl
// budgets, typically loaded from configuration.
func NewWithLimits(st store.Store, synthFor SynthesizerFactory, guard *netguard.URLGuard, fetcher *fetch.Fetcher, limits Limits) *Orchestrator {
	if limits.MaxPages <= 0 {
		limits.MaxPages = discover.MaxCandidates
	}
	return &Orchestrator{
		store:      st,
		synthFor:   synthFor,
		guard:      guard,
		fetcher:    fetcher,
		robots:     discover.NewRobotsGateWithOptions(guard, fetcher, limits.DiscoveryOptions),
		scrapeOpts: limits.ScrapeOptions,
		maxPages:   limits.MaxPages,
	}
}

// Preflight validates a URL without starting a run. The HTTP layer calls
// it before accepting an async analysis request so guard failures surface
// on the request itself.
func (o *Orchestrator) Preflight(ctx context.Context, rawURL string) error {
	_, err := o.guard.Validate(ctx, rawURL)
	return err
}

// AnalyzeSite analyzes a website starting from its homepage: the homepage
// is scraped, up to maxPages same-origin business pages are discovered and
// scraped, and the combined text is synthesized into a fresh profile.
//
// The URL is validated synchronously so callers get pre-flight failures
// immediately. Concurrent identical requests collapse onto one in-flight
// run; the claim happens inside the collapsed group so joiners never
// stamp a run ID that orphans the run already executing.
func (o *Orchestrator) AnalyzeSite(ctx context.Context, tenant, websiteURL, apiKey string) error {
	if _, err := o.guard.Validate(ctx, websiteURL); err != nil {
		return err
	}

	key := tenant + "|" + websiteURL
	_, err, _ := o.singleRuns.Do(key, func() (any, error) {
		runID, err := o.claim(ctx, tenant, websiteURL)
		if err != nil {
			return nil, err
		}
		return nil, o.run(ctx, runParams{
			tenant:   tenant,
			runID:    runID,
			siteURL:  websiteURL,
			apiKey:   apiKey,
			discover: true,
		})
	})
	return err
}

// AnalyzePages analyzes an explicit URL list. The first URL becomes the
// record's website URL. In append mode an existing profile is merged with
// the new text instead of being rebuilt; with no prior profile append mode
// falls back to a fresh synthesis.
func (o *Orchestrator) AnalyzePages(ctx context.Context, tenant string, urls []string, apiKey string, appendMode bool) error {
	if len(urls) == 0 {
		return crawlerr.New(crawlerr.KindInvalidURL, "no urls given")
	}
	for _, u := range urls {
		if _, err := o.guard.Validate(ctx, u); err != nil {
			return err
		}
	}

	key := tenant + "|" + strings.Join(urls, ",")
	_, err, _ := o.singleRuns.Do(key, func() (any, error) {
		runID, err := o.claim(ctx, tenant, urls[0])
		if err != nil {
			return nil, err
		}
		return nil, o.run(ctx, runParams{
			tenant:     tenant,
			runID:      runID,
			siteURL:    urls[0],
			pageURLs:   urls,
			apiKey:     apiKey,
			appendMode: appendMode,
		})
	})
	return err
}

// GetAnalyzedContent returns the tenant's synthesized profile, or nil when
// no completed analysis exists.
func (o *Orchestrator) GetAnalyzedContent(ctx context.Context, tenant string) (*model.StructuredProfile, error) {
	rec, err := o.store.GetProfile(ctx, tenant)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Profile, nil
}

// claim stamps the record with a fresh run ID and pending status. The
// newest claim always wins; an older in-flight run's writes are dropped by
// the run-ID condition on every later write.
func (o *Orchestrator) claim(ctx context.Context, tenant, websiteURL string) (string, error) {
	runID := uuid.New().String()
	empty := ""
	status := model.StatusPending
	err := o.store.UpsertProfile(ctx, tenant, store.ProfilePatch{
		WebsiteURL:   &websiteURL,
		Status:       &status,
		ErrorMessage: &empty,
		RunID:        &runID,
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

type runParams struct {
	tenant     string
	runID      string
	siteURL    string
	pageURLs   []string // empty for AnalyzeSite; discovery fills the list
	apiKey     string
	appendMode bool
	discover   bool
}

type scrapedPage struct {
	url      string
	sections *extract.Sections
	label    string
	rawHTML  string
}

// run executes one analysis. Whatever happens, a terminal status is
// durably written (completed or failed) unless a newer run has taken over
// the record.
func (o *Orchestrator) run(ctx context.Context, p runParams) (err error) {
	defer func() {
		if err == nil || errors.Is(err, store.ErrStaleRun) {
			return
		}
		o.fail(ctx, p.tenant, p.runID, err)
	}()

	if err := o.store.SetStatus(ctx, p.tenant, model.StatusAnalyzing, "", p.runID); err != nil {
		return err
	}

	pages := o.scrapeAll(ctx, p)
	if len(pages) == 0 {
		return crawlerr.New(crawlerr.KindScrapeFailed, "no pages yielded content")
	}

	text := assemble(pages)

	profile, err := o.synthesize(ctx, p, text)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	completed := model.StatusCompleted
	empty := ""
	err = o.store.UpsertProfile(ctx, p.tenant, store.ProfilePatch{
		Status:         &completed,
		Profile:        profile,
		ErrorMessage:   &empty,
		LastAnalyzedAt: &now,
		IfRunID:        p.runID,
	})
	if err != nil {
		return err
	}

	o.logScrapedPages(ctx, p.tenant, pages)

	zap.L().Info("analyzer: run completed",
		zap.String("tenant", p.tenant),
		zap.String("site", p.siteURL),
		zap.Int("pages", len(pages)),
	)
	return nil
}

// scrapeAll fetches and extracts every page of the run sequentially. A
// failing page is logged and skipped; one broken page must not abort the
// whole run.
func (o *Orchestrator) scrapeAll(ctx context.Context, p runParams) []scrapedPage {
	var pages []scrapedPage
	seen := make(map[string]bool)

	scrape := func(rawURL, label string) *scrapedPage {
		normalized := model.NormalizeURL(rawURL)
		if seen[normalized] {
			return nil
		}
		seen[normalized] = true

		page, err := o.fetchWithFallback(ctx, rawURL)
		if err != nil {
			zap.L().Warn("analyzer: page scrape failed",
				zap.String("tenant", p.tenant),
				zap.String("url", rawURL),
				zap.String("kind", string(crawlerr.KindOf(err))),
				zap.Error(err),
			)
			return nil
		}

		sections, err := extract.Extract(string(page.Body))
		if err != nil {
			zap.L().Warn("analyzer: page extraction failed",
				zap.String("tenant", p.tenant),
				zap.String("url", rawURL),
				zap.Error(err),
			)
			return nil
		}
		return &scrapedPage{url: rawURL, sections: sections, label: label, rawHTML: string(page.Body)}
	}

	if p.discover {
		home := scrape(p.siteURL, "Homepage")
		var homeHTML string
		if home != nil {
			pages = append(pages, *home)
			// Re-fetching would double the budget; reuse the homepage body
			// captured during the scrape for link discovery.
			homeHTML = home.rawHTML
		}

		if homeHTML != "" {
			if base, err := url.Parse(normalizeSite(p.siteURL)); err == nil {
				candidates := discover.DiscoverLimit(base, homeHTML, o.maxPages)
				candidates = o.robots.Filter(ctx, base, candidates)
				for _, c := range candidates {
					if sp := scrape(c.URL, pageLabel(c)); sp != nil {
						pages = append(pages, *sp)
					}
				}
			}
		}
		return pages
	}

	for _, u := range p.pageURLs {
		if sp := scrape(u, labelFromURL(u)); sp != nil {
			pages = append(pages, *sp)
		}
	}
	return pages
}

// fetchWithFallback fetches one page through the guard. On an https
// certificate failure it makes exactly one fallback attempt against the
// plain-http equivalent, which is itself re-validated; the fallback is
// never escalated further.
func (o *Orchestrator) fetchWithFallback(ctx context.Context, rawURL string) (*fetch.Page, error) {
	resolved, err := o.guard.Validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page, err := o.fetcher.Fetch(ctx, resolved, o.scrapeOpts)
	if err == nil {
		return page, nil
	}
	if !fetch.IsCertificateError(err) || resolved.URL.Scheme != "https" {
		return nil, err
	}

	httpURL := *resolved.URL
	httpURL.Scheme = "http"
	zap.L().Debug("analyzer: retrying with plain http after certificate error",
		zap.String("url", httpURL.String()),
	)

	fallback, ferr := o.guard.Validate(ctx, httpURL.String())
	if ferr != nil {
		return nil, err
	}
	page, ferr = o.fetcher.Fetch(ctx, fallback, o.scrapeOpts)
	if ferr != nil {
		return nil, err
	}
	return page, nil
}

// synthesize picks summarize or merge. Append mode merges only when a
// prior profile exists.
func (o *Orchestrator) synthesize(ctx context.Context, p runParams, text string) (*model.StructuredProfile, error) {
	s := o.synthFor(p.apiKey)

	if p.appendMode {
		rec, err := o.store.GetProfile(ctx, p.tenant)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Profile != nil {
			return s.MergeInto(ctx, rec.Profile, text)
		}
	}
	return s.Summarize(ctx, text)
}

// fail durably records the run's failure with a sanitized message. Stale
// runs are dropped silently; internal error details never reach the
// record.
func (o *Orchestrator) fail(ctx context.Context, tenant, runID string, runErr error) {
	zap.L().Error("analyzer: run failed",
		zap.String("tenant", tenant),
		zap.Error(runErr),
	)
	status := crawlerr.Sanitized(runErr)
	if err := o.store.SetStatus(ctx, tenant, model.StatusFailed, status, runID); err != nil &&
		!errors.Is(err, store.ErrStaleRun) {
		zap.L().Error("analyzer: failed to record failure",
			zap.String("tenant", tenant),
			zap.Error(err),
		)
	}
}

// logScrapedPages appends one analyzed-page row per unique normalized URL.
// Log failures are not fatal: the audit trail must not fail a completed
// run.
func (o *Orchestrator) logScrapedPages(ctx context.Context, tenant string, pages []scrapedPage) {
	for _, page := range pages {
		normalized := model.NormalizeURL(page.url)
		if err := o.store.AppendAnalyzedPage(ctx, tenant, normalized); err != nil {
			zap.L().Warn("analyzer: failed to append analyzed page",
				zap.String("tenant", tenant),
				zap.String("url", normalized),
				zap.Error(err),
			)
		}
	}
}

func assemble(pages []scrapedPage) string {
	texts := make([]extract.PageText, len(pages))
	for i, p := range pages {
		texts[i] = extract.PageText{Label: p.label, Sections: p.sections}
	}
	return extract.Assemble(texts)
}

// normalizeSite mirrors the guard's scheme defaulting so discovery
// resolves relative links against the URL that was actually fetched.
func normalizeSite(raw string) string {
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

func pageLabel(c model.CandidateLink) string {
	kw := c.MatchedKeyword
	if kw == "" {
		return labelFromURL(c.URL)
	}
	return strings.ToUpper(kw[:1]) + kw[1:] + " page"
}

func labelFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "Homepage"
	}
	return strings.Trim(u.Path, "/")
}
