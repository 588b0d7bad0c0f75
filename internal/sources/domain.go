package sources

import (
	"net"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// BaseDomain returns the registrable base domain of host: the smallest
// domain a user can register, e.g. "api.segment.io" -> "segment.io",
// "www.example.co.uk" -> "example.co.uk". IPv4-literal hosts are
// returned unchanged. Falls back to a last-two-labels heuristic if the
// public suffix list lookup fails (malformed input, bare TLD, etc.).
func BaseDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return host
	}
	if net.ParseIP(host) != nil {
		return host
	}

	dom, err := publicsuffix.Parse(host)
	if err != nil || dom.SLD == "" {
		return lastTwoLabels(host)
	}
	if dom.TLD == "" {
		return dom.SLD
	}
	return dom.SLD + "." + dom.TLD
}

func lastTwoLabels(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
