// Package ssrf implements the synchronous URL block (§4.J isUrlBlocked)
// and the asynchronous DNS-resolving validator (§4.J validateWebhookUrl)
// used by the webhook trigger on every delivery attempt, including
// retries, to defend against DNS rebinding.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Config toggles environment-specific relaxations. In production both
// flags must be false; they exist only for local/integration testing
// (§6 ALLOW_HTTP_WEBHOOKS, INTEGRATION_TEST_MODE).
type Config struct {
	AllowHTTP          bool
	IntegrationTestMode bool
	// TestAllowHosts is only consulted when IntegrationTestMode is true.
	TestAllowHosts []string
}

// Result is the outcome of validating a webhook URL.
type Result struct {
	Safe   bool
	Reason string
}

func blocked(reason string) Result { return Result{Safe: false, Reason: reason} }
func safe() Result                 { return Result{Safe: true} }

// IsUrlBlocked is the synchronous gate applied at webhook create/update
// time: scheme, userinfo and hostname-pattern checks, plus literal-IP
// private-range checks. It does not perform DNS resolution.
func IsUrlBlocked(rawURL string, cfg Config) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return blocked("invalid URL")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && !(scheme == "http" && cfg.AllowHTTP) {
		return blocked("scheme must be https")
	}

	if u.User != nil {
		return blocked("URL must not contain userinfo")
	}

	host := normalizeHostname(u.Hostname())
	if host == "" {
		return blocked("missing hostname")
	}

	if cfg.IntegrationTestMode && containsHost(cfg.TestAllowHosts, host) {
		return safe()
	}

	if isBlockedHostnamePattern(host) {
		return blocked(fmt.Sprintf("hostname pattern blocked: %s", host))
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivate(ip) {
			return blocked(fmt.Sprintf("literal IP is private: %s", ip.String()))
		}
	}

	return safe()
}

// ValidateWebhookUrl is the asynchronous validator used at each delivery
// attempt: it re-runs the IsUrlBlocked gate, then resolves the hostname's
// A/AAAA records and blocks if any resolve to a private IP, or if there
// are no records at all. Re-resolving on every attempt defends against a
// hostname that was public at registration time being rebound to a
// private IP later (§4.J rationale).
func ValidateWebhookUrl(ctx context.Context, rawURL string, cfg Config) Result {
	gate := IsUrlBlocked(rawURL, cfg)
	if !gate.Safe {
		return gate
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return blocked("invalid URL")
	}
	host := normalizeHostname(u.Hostname())

	if ip := net.ParseIP(host); ip != nil {
		// Already checked as a literal in the gate above; nothing more to resolve.
		return safe()
	}

	if cfg.IntegrationTestMode && containsHost(cfg.TestAllowHosts, host) {
		return safe()
	}

	resolver := net.DefaultResolver
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return blocked(fmt.Sprintf("hostname did not resolve: %s", host))
	}

	for _, addr := range addrs {
		if IsPrivate(addr.IP) {
			return blocked(fmt.Sprintf("Hostname resolves to private IP: %s", addr.IP.String()))
		}
	}

	return safe()
}

func normalizeHostname(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	if idx := strings.Index(h, "%"); idx >= 0 { // strip IPv6 zone suffix
		h = h[:idx]
	}
	return h
}

func isBlockedHostnamePattern(host string) bool {
	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".local", ".internal", ".localhost"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func containsHost(list []string, host string) bool {
	for _, h := range list {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

// IsPrivate reports whether ip falls in a private/link-local/loopback/
// multicast/reserved range per §4.J's explicit ranges.
func IsPrivate(ip net.IP) bool {
	if ip == nil {
		return true
	}

	if v4 := ip.To4(); v4 != nil {
		for _, block := range privateV4Blocks {
			if block.Contains(v4) {
				return true
			}
		}
		return false
	}

	for _, block := range privateV6Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	// IPv4-mapped IPv6 addresses are unwrapped and re-checked against the v4 ranges.
	if mapped := ip.To4(); mapped != nil {
		for _, block := range privateV4Blocks {
			if block.Contains(mapped) {
				return true
			}
		}
	}
	return false
}

var privateV4Blocks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

var privateV6Blocks = mustParseCIDRs(
	"::1/128",
	"::/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("ssrf: invalid CIDR literal %q: %v", c, err))
		}
		out = append(out, n)
	}
	return out
}
