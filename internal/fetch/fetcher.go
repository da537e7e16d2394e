// Package fetch performs single bounded HTTP GETs for the analyzer. Every
// request goes through the URL guard first; redirect hops are re-validated,
// and time, byte, and rate budgets are enforced per request.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/site-analyzer/internal/crawlerr"
	"github.com/sells-group/site-analyzer/internal/netguard"
)

// UserAgent identifies the crawler to target sites.
const UserAgent = "SiteAnalyzerBot/1.0 (+business profile crawler)"

// Default budgets. Scrape limits apply to pages whose text feeds the
// synthesizer; discovery limits apply to the cheaper link-discovery and
// robots.txt fetches.
const (
	ScrapeTimeout     = 15 * time.Second
	ScrapeMaxBytes    = 5 << 20
	DiscoveryTimeout  = 10 * time.Second
	DiscoveryMaxBytes = 500 << 10
)

// Options bounds a single fetch.
type Options struct {
	Timeout         time.Duration
	MaxBytes        int64
	FollowRedirects bool
}

// ScrapeOptions returns the budget for a primary page scrape. Redirects
// are followed, matching ordinary browser behavior, with every hop
// re-validated through the URL guard.
func ScrapeOptions() Options {
	return Options{Timeout: ScrapeTimeout, MaxBytes: ScrapeMaxBytes, FollowRedirects: true}
}

// DiscoveryOptions returns the tighter budget for link-discovery
// sub-fetches, where any redirect is rejected outright.
func DiscoveryOptions() Options {
	return Options{Timeout: DiscoveryTimeout, MaxBytes: DiscoveryMaxBytes, FollowRedirects: false}
}

// Page is the raw result of a successful fetch.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher issues bounded GETs. A per-host token bucket keeps sequential
// page fetches against one origin polite.
type Fetcher struct {
	guard     *netguard.URLGuard
	transport http.RoundTripper

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewFetcher creates a Fetcher gated by the given URL guard.
func NewFetcher(guard *netguard.URLGuard) *Fetcher {
	return &Fetcher{
		guard: guard,
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		limiters: make(map[string]*rate.Limiter),
		rps:      2,
		burst:    1,
	}
}

// NewFetcherWithTransport creates a Fetcher over a custom transport, used
// by tests to serve canned responses without touching the network.
func NewFetcherWithTransport(guard *netguard.URLGuard, transport http.RoundTripper) *Fetcher {
	f := NewFetcher(guard)
	f.transport = transport
	return f
}

// Fetch performs one GET against a guard-validated URL and returns the raw
// HTML page, or a typed crawlerr failure.
func (f *Fetcher) Fetch(ctx context.Context, resolved *netguard.ResolvedURL, opts Options) (*Page, error) {
	return f.fetch(ctx, resolved, opts, true)
}

// FetchRaw is Fetch without the text/html content-type requirement, for
// non-HTML resources like robots.txt. All other bounds still apply.
func (f *Fetcher) FetchRaw(ctx context.Context, resolved *netguard.ResolvedURL, opts Options) (*Page, error) {
	return f.fetch(ctx, resolved, opts, false)
}

func (f *Fetcher) fetch(ctx context.Context, resolved *netguard.ResolvedURL, opts Options, requireHTML bool) (*Page, error) {
	target := resolved.URL

	if err := f.limiter(target.Hostname()).Wait(ctx); err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindTimeout, err, "rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindInvalidURL, err, "create request")
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := &http.Client{
		Transport:     f.transport,
		CheckRedirect: f.checkRedirect(opts),
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !opts.FollowRedirects && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, crawlerr.New(crawlerr.KindRedirectRejected,
			"status %d to %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, crawlerr.HTTPStatus(resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if requireHTML && !strings.Contains(strings.ToLower(ct), "text/html") {
		return nil, crawlerr.New(crawlerr.KindUnexpectedContentType, "content-type %q", ct)
	}

	// Stream with a hard cap. Content-Length is a hint only: it can be
	// absent or wrong, so the cap is enforced on actual bytes read.
	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > opts.MaxBytes {
		return nil, crawlerr.New(crawlerr.KindSizeLimitExceeded,
			"body exceeds %d bytes", opts.MaxBytes)
	}

	finalURL := target.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	zap.L().Debug("fetch: page fetched",
		zap.String("url", target.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)

	return &Page{
		URL:         target.String(),
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		Body:        body,
	}, nil
}

// checkRedirect builds the redirect policy for one fetch. When redirects
// are followed, every hop is re-validated through the URL guard so an
// attacker-controlled redirect cannot point the crawler at a private
// address after the initial check passed.
func (f *Fetcher) checkRedirect(opts Options) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !opts.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return crawlerr.New(crawlerr.KindRedirectRejected, "too many redirects")
		}
		if _, err := f.guard.Validate(req.Context(), req.URL.String()); err != nil {
			return crawlerr.Wrap(crawlerr.KindRedirectRejected, err, "redirect target rejected")
		}
		return nil
	}
}

// limiter returns the per-host rate limiter, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.rps, f.burst)
		f.limiters[host] = l
	}
	return l
}

// classifyTransportError maps transport failures onto the error taxonomy.
// Timeouts are surfaced distinctly from other network errors; certificate
// failures keep their own kind so the caller can elect the one-shot
// plain-http fallback.
func classifyTransportError(err error) error {
	// A redirect hop rejected inside CheckRedirect arrives wrapped in a
	// *url.Error; keep its kind.
	var ce *crawlerr.Error
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return crawlerr.Wrap(crawlerr.KindTimeout, err, "fetch")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawlerr.Wrap(crawlerr.KindTimeout, err, "fetch")
	}

	if isCertificateError(err) {
		return crawlerr.Wrap(crawlerr.KindSSLCertificate, err, "fetch")
	}

	return crawlerr.Wrap(crawlerr.KindHTTPError, err, "fetch")
}

// isCertificateError reports whether the error chain is a TLS certificate
// verification failure.
func isCertificateError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var invalidCert x509.CertificateInvalidError
	return errors.As(err, &invalidCert)
}

// IsCertificateError reports whether a fetch failure was caused by an
// invalid TLS certificate. The orchestrator uses this to decide on the
// single plain-http fallback attempt.
func IsCertificateError(err error) bool {
	return crawlerr.IsKind(err, crawlerr.KindSSLCertificate)
}
