// Package clientip derives one canonical client IP per request from a
// configured proxy-header policy. Naive forwarded-header trust lets a
// client reset any IP-keyed rate limiter per request; this package fails
// closed to the "unknown" sentinel whenever the policy doesn't clearly
// license trusting a header.
package clientip

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// Unknown is the sentinel IP returned whenever the policy can't establish
// a trusted client IP.
const Unknown = "unknown"

// Policy configures which proxy headers this deployment trusts.
type Policy struct {
	TrustProxyHeaders         bool
	TrustSingleXForwardedFor  bool
	TrustedProxySharedSecret  string
	TrustedProxySharedSecretHeader string // defaults to "X-Proxy-Secret" if empty and secret is set
	DirectEdgeHeader          string // defaults to "CF-Connecting-IP"
}

func (p Policy) secretHeader() string {
	if p.TrustedProxySharedSecretHeader != "" {
		return p.TrustedProxySharedSecretHeader
	}
	return "X-Proxy-Secret"
}

func (p Policy) edgeHeader() string {
	if p.DirectEdgeHeader != "" {
		return p.DirectEdgeHeader
	}
	return "CF-Connecting-IP"
}

// Resolve derives the canonical client IP for r under policy.
func Resolve(h http.Header, p Policy) string {
	if p.TrustedProxySharedSecret != "" {
		got := h.Get(p.secretHeader())
		if subtle.ConstantTimeCompare([]byte(got), []byte(p.TrustedProxySharedSecret)) != 1 {
			return Unknown
		}
	} else {
		// No shared secret configured: shared-secret gated headers are never trusted.
	}

	if edge := h.Get(p.edgeHeader()); edge != "" {
		if ip, ok := parseHostIP(edge); ok {
			return ip
		}
	}

	if !p.TrustProxyHeaders {
		return Unknown
	}

	if real := h.Get("X-Real-IP"); real != "" {
		if ip, ok := parseHostIP(real); ok {
			return ip
		}
	}

	if xff := h.Get("X-Forwarded-For"); xff != "" {
		hops := splitForwardedFor(xff)
		if len(hops) > 1 {
			if ip, ok := parseHostIP(hops[len(hops)-1]); ok {
				return ip
			}
			return Unknown
		}
		if len(hops) == 1 && p.TrustSingleXForwardedFor {
			if ip, ok := parseHostIP(hops[0]); ok {
				return ip
			}
		}
	}

	return Unknown
}

func splitForwardedFor(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseHostIP strips bracketed IPv6 and trailing :port, then validates the
// remainder as an IPv4 or IPv6 literal.
func parseHostIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	// Bracketed IPv6, optionally with a port: "[::1]:8080" or "[::1]".
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			host := s[1:end]
			if ip := net.ParseIP(host); ip != nil {
				return ip.String(), true
			}
			return "", false
		}
		return "", false
	}

	// Plain IPv6 literal (contains multiple colons, no brackets).
	if strings.Count(s, ":") > 1 {
		if ip := net.ParseIP(s); ip != nil {
			return ip.String(), true
		}
		return "", false
	}

	// host:port or bare IPv4.
	if host, _, err := net.SplitHostPort(s); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String(), true
		}
		return "", false
	}

	if ip := net.ParseIP(s); ip != nil {
		return ip.String(), true
	}
	return "", false
}
