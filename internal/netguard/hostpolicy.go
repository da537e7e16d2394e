// Package netguard gates every outbound crawl request: a pure address
// policy plus a URL validator that resolves DNS and checks every candidate
// address, closing the DNS-rebinding SSRF vector.
package netguard

import "net/netip"

// blockedV4Prefixes lists the IPv4 ranges the crawler must never reach:
// "this network", RFC 1918 private space, loopback, CGNAT-adjacent
// link-local (including the cloud metadata address), and the three
// documentation ranges.
var blockedV4Prefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
}

// IsBlockedAddress reports whether an IP address string is off-limits for
// outbound requests. Unparseable input is blocked, never treated as
// unknown-therefore-allowed. Total and side-effect-free.
func IsBlockedAddress(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	return IsBlockedAddr(addr)
}

// IsBlockedAddr is IsBlockedAddress for an already-parsed address.
func IsBlockedAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}

	// IPv4-mapped IPv6 is blocked outright here; the resolver path unmaps
	// addresses first, so anything still mapped bypassed that unmapping.
	if addr.Is4In6() {
		return true
	}

	if addr.Is4() {
		for _, p := range blockedV4Prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		// Everything from 224.0.0.0 up: multicast and reserved.
		return addr.As4()[0] >= 224
	}

	// IPv6.
	if addr.IsLoopback() || addr.IsUnspecified() {
		return true
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return true
	}
	// Unique-local fc00::/7 (fc.. and fd.. prefixes).
	if b := addr.As16(); b[0]&0xfe == 0xfc {
		return true
	}
	return false
}
