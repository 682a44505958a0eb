package common

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CanonicalizeURL normalizes a URL for identity comparison and deduplication.
// The scheme and host are lowercased, default ports are removed, the fragment
// is stripped and query parameters are sorted so equivalent URLs map to the
// same string.
func CanonicalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q missing scheme or host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, p, splitErr := net.SplitHostPort(host); splitErr == nil {
		if (u.Scheme == "http" && p == "80") || (u.Scheme == "https" && p == "443") {
			host = h
		}
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		// Values.Encode sorts by key
		u.RawQuery = u.Query().Encode()
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// HostKey returns the lowercased host (including any explicit port) for a URL.
// Politeness delays, per-host connection limits and failure tracking are all
// keyed by this value. Returns "" when the URL cannot be parsed.
func HostKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsPrivateHost reports whether a URL points at a loopback or private-network
// address. Production deployments reject such seeds; development mode allows
// them so local test servers can be crawled.
func IsPrivateHost(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") || strings.HasSuffix(hostname, ".local") {
		return true
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
	}

	return false
}
