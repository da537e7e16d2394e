// Package discover proposes which pages of a website are worth scraping:
// a bounded, same-origin selection of links likely to carry business
// information, optionally filtered by the site's robots.txt.
package discover

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/site-analyzer/internal/model"
)

// MaxCandidates bounds how many discovered pages one run will scrape in
// addition to the homepage.
const MaxCandidates = 5

// pageKeywords is the fixed list of path fragments that mark a page as
// likely business information (About/Contact/FAQ/Services and similar).
// Matching is substring-based, so "contact" also catches "contact-us".
var pageKeywords = []string{
	"about-us",
	"about",
	"who-we-are",
	"our-story",
	"company",
	"contact",
	"faq",
	"help",
	"support",
	"services",
	"what-we-do",
	"products",
	"shop",
	"store",
}

// Discover collects candidate links from homepage HTML. Relative URLs are
// resolved against base; only links sharing base's origin survive. The
// same-origin rule scopes content, it is not a security control: the URL
// guard re-validates every page before it is fetched. Returns at most
// MaxCandidates links in document order, deduplicated.
func Discover(base *url.URL, homepageHTML string) []model.CandidateLink {
	return DiscoverLimit(base, homepageHTML, MaxCandidates)
}

// DiscoverLimit is Discover with a caller-supplied cap on how many links
// are returned. A non-positive max falls back to MaxCandidates.
func DiscoverLimit(base *url.URL, homepageHTML string, max int) []model.CandidateLink {
	if max <= 0 {
		max = MaxCandidates
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homepageHTML))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []model.CandidateLink

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		if !sameOrigin(resolved, base) {
			return true
		}

		keyword := matchKeyword(resolved.Path)
		if keyword == "" {
			return true
		}

		resolved.Fragment = ""
		normalized := model.NormalizeURL(resolved.String())
		if normalized == model.NormalizeURL(base.String()) || seen[normalized] {
			return true
		}
		seen[normalized] = true

		out = append(out, model.CandidateLink{
			URL:            resolved.String(),
			MatchedKeyword: keyword,
		})
		return len(out) < max
	})

	return out
}

// matchKeyword returns the first keyword contained in the path, or "".
func matchKeyword(path string) string {
	p := strings.ToLower(path)
	for _, kw := range pageKeywords {
		if strings.Contains(p, kw) {
			return kw
		}
	}
	return ""
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
