package safeurl

import (
	"net"
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes before a probe goes out.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// Base returns the part of a playlist URL before its first '$'. Players treat
// everything after '$' as a display annotation, not part of the address.
func Base(u string) string {
	if i := strings.IndexByte(u, '$'); i >= 0 {
		return u[:i]
	}
	return u
}

// IsIPv6 reports whether the URL's host is an IPv6 literal (http://[2409:8087::1]:8080/...).
// Hostnames count as IPv4; resolving them would make ranking depend on DNS.
func IsIPv6(u string) bool {
	parsed, err := url.Parse(Base(u))
	if err != nil || !strings.HasPrefix(parsed.Host, "[") {
		return false
	}
	ip := net.ParseIP(parsed.Hostname())
	return ip != nil && ip.To4() == nil
}

// Host returns scheme://host[:port] for u, or u unchanged when it does not parse.
func Host(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return u
	}
	return parsed.Scheme + "://" + parsed.Host
}
