package netguard

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-analyzer/internal/crawlerr"
)

// fakeResolver scripts DNS answers per host and network.
type fakeResolver struct {
	v4  map[string][]string
	v6  map[string][]string
	err error
}

func (f *fakeResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	if f.err != nil {
		return nil, f.err
	}
	var raw []string
	switch network {
	case "ip4":
		raw = f.v4[host]
	case "ip6":
		raw = f.v6[host]
	}
	if len(raw) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	ips := make([]net.IP, 0, len(raw))
	for _, s := range raw {
		ips = append(ips, net.ParseIP(s))
	}
	return ips, nil
}

func guardWith(v4, v6 map[string][]string) *URLGuard {
	return NewURLGuardWithResolver(&fakeResolver{v4: v4, v6: v6})
}

func TestValidate_DefaultsToHTTPS(t *testing.T) {
	g := guardWith(map[string][]string{"example.com": {"93.184.216.34"}}, nil)

	resolved, err := g.Validate(context.Background(), "example.com/about")
	require.NoError(t, err)
	assert.Equal(t, "https", resolved.URL.Scheme)
	assert.Equal(t, "example.com", resolved.URL.Hostname())
	require.Len(t, resolved.Addresses, 1)
	assert.Equal(t, "93.184.216.34", resolved.Addresses[0].String())
}

func TestValidate_RejectsNonHTTPSchemes(t *testing.T) {
	g := guardWith(nil, nil)

	for _, raw := range []string{"ftp://example.com", "file:///etc/passwd", "gopher://example.com"} {
		_, err := g.Validate(context.Background(), raw)
		require.Error(t, err, raw)
		assert.Equal(t, crawlerr.KindDisallowedProtocol, crawlerr.KindOf(err), raw)
	}
}

func TestValidate_InvalidURL(t *testing.T) {
	g := guardWith(nil, nil)

	tests := []string{"", "   ", "https://", "http://%zz"}
	for _, raw := range tests {
		_, err := g.Validate(context.Background(), raw)
		require.Error(t, err, raw)
		assert.Equal(t, crawlerr.KindInvalidURL, crawlerr.KindOf(err), raw)
	}
}

func TestValidate_BlockedHostnames(t *testing.T) {
	g := guardWith(nil, nil)

	tests := []struct {
		name string
		url  string
	}{
		{"localhost", "http://localhost:8080/admin"},
		{"localhost https", "https://localhost"},
		{"metadata substring", "http://metadata.google.internal/computeMetadata/v1/"},
		{"metadata embedded", "https://my-metadata-service.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Validate(context.Background(), tt.url)
			require.Error(t, err)
			assert.Equal(t, crawlerr.KindBlockedHost, crawlerr.KindOf(err))
		})
	}
}

func TestValidate_LiteralIPCheckedWithoutDNS(t *testing.T) {
	// The resolver would error for everything; literal IPs must never
	// reach it.
	g := NewURLGuardWithResolver(&fakeResolver{err: errors.New("resolver must not be called")})

	_, err := g.Validate(context.Background(), "http://169.254.169.254/latest/meta-data/")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindBlockedHost, crawlerr.KindOf(err))

	_, err = g.Validate(context.Background(), "http://127.0.0.1:9000/")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindBlockedHost, crawlerr.KindOf(err))

	resolved, err := g.Validate(context.Background(), "http://93.184.216.34/")
	require.NoError(t, err)
	assert.Equal(t, "93.184.216.34", resolved.Addresses[0].String())
}

func TestValidate_DNSRebindingBlocked(t *testing.T) {
	g := guardWith(map[string][]string{
		"evil.example.com":  {"127.0.0.1"},
		"mixed.example.com": {"93.184.216.34", "10.0.0.5"},
	}, nil)

	_, err := g.Validate(context.Background(), "https://evil.example.com")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindDNSRebindingBlocked, crawlerr.KindOf(err))

	// One public and one private address: still rejected. Every resolved
	// address must pass.
	_, err = g.Validate(context.Background(), "https://mixed.example.com")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindDNSRebindingBlocked, crawlerr.KindOf(err))
}

func TestValidate_V6OnlyHost(t *testing.T) {
	g := guardWith(nil, map[string][]string{
		"v6.example.com": {"2606:2800:220:1:248:1893:25c8:1946"},
	})

	resolved, err := g.Validate(context.Background(), "https://v6.example.com")
	require.NoError(t, err)
	require.Len(t, resolved.Addresses, 1)
	assert.True(t, resolved.Addresses[0].Is6())
}

func TestValidate_UnresolvableHost(t *testing.T) {
	g := guardWith(nil, nil)

	_, err := g.Validate(context.Background(), "https://does-not-exist.example.invalid")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindUnresolvableHost, crawlerr.KindOf(err))
}

func TestValidate_MappedV6Rebinding(t *testing.T) {
	g := guardWith(nil, map[string][]string{
		"mapped.example.com": {"::ffff:192.168.1.1"},
	})

	_, err := g.Validate(context.Background(), "https://mapped.example.com")
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindDNSRebindingBlocked, crawlerr.KindOf(err))
}
