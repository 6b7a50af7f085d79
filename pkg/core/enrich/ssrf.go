package enrich

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateFetchURL gates outbound article fetches. It rejects non-http(s)
// schemes, empty hosts, and any host that resolves to a private, loopback,
// link-local, or cloud-metadata address, v4 or v6. Callers re-run this on
// every attempt since DNS answers change.
func ValidateFetchURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("unparseable URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return fmt.Errorf("address %s is not routable for fetch", ip)
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("host %s resolved to nothing", host)
	}
	for _, addr := range addrs {
		if blockedIP(addr.IP) {
			return fmt.Errorf("host %s resolves to blocked address %s", host, addr.IP)
		}
	}
	return nil
}

// blockedIP reports whether an address must never be fetched: loopback,
// private ranges, link-local (which covers 169.254.169.254 metadata),
// unspecified, and v6 unique-local.
func blockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// fc00::/7 unique local addresses.
	if v6 := ip.To16(); v6 != nil && ip.To4() == nil && (v6[0]&0xfe) == 0xfc {
		return true
	}
	return false
}
