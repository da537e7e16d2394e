package discover

import (
	"context"
	"net/url"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sells-group/site-analyzer/internal/fetch"
	"github.com/sells-group/site-analyzer/internal/model"
	"github.com/sells-group/site-analyzer/internal/netguard"
)

// RobotsGate filters discovered candidates through the site's robots.txt.
// Politeness only: a missing, unfetchable, or unparseable robots.txt
// allows everything.
type RobotsGate struct {
	guard   *netguard.URLGuard
	fetcher *fetch.Fetcher
	opts    fetch.Options
}

// NewRobotsGate creates a RobotsGate using the given guard and fetcher
// with the default discovery budget.
func NewRobotsGate(guard *netguard.URLGuard, fetcher *fetch.Fetcher) *RobotsGate {
	return NewRobotsGateWithOptions(guard, fetcher, fetch.DiscoveryOptions())
}

// NewRobotsGateWithOptions creates a RobotsGate with a caller-supplied
// fetch budget for the robots.txt request.
func NewRobotsGateWithOptions(guard *netguard.URLGuard, fetcher *fetch.Fetcher, opts fetch.Options) *RobotsGate {
	return &RobotsGate{guard: guard, fetcher: fetcher, opts: opts}
}

// Filter fetches base's robots.txt once and drops candidates disallowed
// for our user agent.
func (g *RobotsGate) Filter(ctx context.Context, base *url.URL, candidates []model.CandidateLink) []model.CandidateLink {
	return applyGroup(g.load(ctx, base), candidates)
}

// applyGroup drops candidates the robots group disallows. A nil group
// means no restrictions.
func applyGroup(group *robotstxt.Group, candidates []model.CandidateLink) []model.CandidateLink {
	if group == nil {
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		u, err := url.Parse(c.URL)
		if err != nil || group.Test(u.Path) {
			kept = append(kept, c)
			continue
		}
		zap.L().Debug("discover: candidate disallowed by robots.txt",
			zap.String("url", c.URL),
		)
	}
	return kept
}

// load fetches and parses robots.txt for the base origin. Any failure
// along the way returns nil, meaning no restrictions.
func (g *RobotsGate) load(ctx context.Context, base *url.URL) *robotstxt.Group {
	robotsURL := base.Scheme + "://" + base.Host + "/robots.txt"

	resolved, err := g.guard.Validate(ctx, robotsURL)
	if err != nil {
		return nil
	}

	page, err := g.fetcher.FetchRaw(ctx, resolved, g.opts)
	if err != nil {
		return nil
	}

	robots, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		return nil
	}
	return robots.FindGroup(fetch.UserAgent)
}
