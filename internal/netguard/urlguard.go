package netguard

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/site-analyzer/internal/crawlerr"
)

// Resolver abstracts DNS lookup so tests can script resolution results.
// net.DefaultResolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ResolvedURL is a validated crawl target. The request is still made
// against the hostname (normal TLS and virtual-hosting behavior); the
// resolved addresses are kept for audit logging only.
type ResolvedURL struct {
	URL       *url.URL
	Addresses []netip.Addr
}

// URLGuard validates URLs before any network fetch. It is the sole gate:
// nothing reaches the fetcher without passing Validate.
type URLGuard struct {
	resolver Resolver
}

// NewURLGuard creates a URLGuard using the system resolver.
func NewURLGuard() *URLGuard {
	return &URLGuard{resolver: net.DefaultResolver}
}

// NewURLGuardWithResolver creates a URLGuard with a custom resolver.
func NewURLGuardWithResolver(r Resolver) *URLGuard {
	return &URLGuard{resolver: r}
}

// Validate parses and vets a raw URL. A missing scheme defaults to https.
// Literal IP hosts are checked directly against the address policy;
// hostnames are resolved (A and AAAA) and every resolved address must pass,
// so a public domain pointing at a private address is rejected.
func (g *URLGuard) Validate(ctx context.Context, rawURL string) (*ResolvedURL, error) {
	raw := strings.TrimSpace(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, crawlerr.Wrap(crawlerr.KindInvalidURL, err, "parse url")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, crawlerr.New(crawlerr.KindDisallowedProtocol, "scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.Contains(host, "metadata") {
		return nil, crawlerr.New(crawlerr.KindBlockedHost, "host %q", host)
	}

	// Literal IP host: no DNS involved, check the policy directly.
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(addr) {
			return nil, crawlerr.New(crawlerr.KindBlockedHost, "address %s", addr)
		}
		return &ResolvedURL{URL: u, Addresses: []netip.Addr{addr}}, nil
	}

	addrs, err := g.resolveAll(ctx, host)
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			zap.L().Warn("netguard: dns resolution hit blocked address",
				zap.String("host", host),
				zap.String("address", addr.String()),
			)
			return nil, crawlerr.New(crawlerr.KindDNSRebindingBlocked,
				"host %q resolves to %s", host, addr)
		}
	}

	return &ResolvedURL{URL: u, Addresses: addrs}, nil
}

// resolveAll looks up both A and AAAA records, tolerating failure of one
// family as long as the other yields addresses.
func (g *URLGuard) resolveAll(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var lastErr error

	for _, network := range []string{"ip4", "ip6"} {
		ips, err := g.resolver.LookupIP(ctx, network, host)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ip := range ips {
			if addr, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, addr.Unmap())
			}
		}
	}

	if len(addrs) == 0 {
		return nil, crawlerr.Wrap(crawlerr.KindUnresolvableHost, lastErr, host)
	}
	return addrs, nil
}
