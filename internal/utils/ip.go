package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseCIDRs parses an allowlist. A bare address is taken as a single-host
// prefix.
func ParseCIDRs(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			addr, err := netip.ParseAddr(cidr)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", cidr, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// IsAllowedIP reports whether ip falls inside one of the allowed prefixes.
// IPv4-mapped IPv6 addresses are matched as IPv4.
func IsAllowedIP(ip string, allowed []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the host part of the request's remote address. Behind a
// proxy, run chi's RealIP middleware first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
