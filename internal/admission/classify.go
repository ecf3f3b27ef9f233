// Package admission implements the operation classifier (§4.E) and the
// admission middleware (§4.F) that composes the IP resolver, capability
// codec and rate-limit engine ahead of every non-exempt route.
package admission

import (
	"regexp"
	"strings"

	"github.com/albri/mdplane-sub004/internal/ratelimit"
)

var (
	apiKeyPattern        = regexp.MustCompile(`^sk_(live|test)_[A-Za-z0-9]{20,}$`)
	capabilityPathSegment = regexp.MustCompile(`^(a_[A-Za-z0-9]{20,}|[A-Za-z0-9]{22,})$`)
)

// exemptPaths never go through admission at all (§4.E).
var exemptPrefixes = []string{"/health", "/metrics", "/openapi.json", "/docs"}

// IsExempt reports whether path should skip admission entirely.
func IsExempt(path string) bool {
	for _, p := range exemptPrefixes {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Classify maps (method, path) to an Operation per the §4.E rules, most
// specific match first, falling through to OpRead.
func Classify(method, path string) ratelimit.Operation {
	segs := splitPath(path)

	if method == "POST" && path == "/bootstrap" {
		return ratelimit.OpBootstrap
	}
	if method == "POST" && (path == "/capabilities/check" || matchesCapabilitiesCheck(segs)) {
		return ratelimit.OpCapabilityCheck
	}
	if method == "GET" && isSubscribePath(segs) {
		return ratelimit.OpSubscribe
	}
	if method == "GET" && isSearchPath(segs, path) {
		return ratelimit.OpSearch
	}
	if method == "POST" && isBulkPath(segs) {
		return ratelimit.OpBulk
	}
	if method == "POST" && isWebhookCreatePath(segs) {
		return ratelimit.OpWebhookCreate
	}

	if len(segs) > 0 {
		switch segs[0] {
		case "w":
			if method == "POST" || method == "PUT" || method == "DELETE" {
				return ratelimit.OpWrite
			}
		case "a":
			if method == "POST" {
				return ratelimit.OpAppend
			}
		}
	}

	return ratelimit.OpRead
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchesCapabilitiesCheck matches "/w/:k/capabilities/check" (any tier
// prefix per the literal examples in §4.E, generalized to r|a|w).
func matchesCapabilitiesCheck(segs []string) bool {
	return len(segs) == 4 && isTier(segs[0]) && segs[2] == "capabilities" && segs[3] == "check"
}

// isSubscribePath matches "/{r|a|w}/:k/ops/subscribe" and
// ".../ops/folders/subscribe".
func isSubscribePath(segs []string) bool {
	if len(segs) == 4 && isTier(segs[0]) && segs[2] == "ops" && segs[3] == "subscribe" {
		return true
	}
	if len(segs) == 5 && isTier(segs[0]) && segs[2] == "ops" && segs[3] == "folders" && segs[4] == "subscribe" {
		return true
	}
	return false
}

// isSearchPath matches "/r/:k/search", "/r/:k/ops/folders/search" and the
// literal "/api/v1/search" surface.
func isSearchPath(segs []string, fullPath string) bool {
	if fullPath == "/api/v1/search" {
		return true
	}
	if len(segs) == 3 && segs[0] == "r" && segs[2] == "search" {
		return true
	}
	if len(segs) == 5 && segs[0] == "r" && segs[2] == "ops" && segs[3] == "folders" && segs[4] == "search" {
		return true
	}
	return false
}

// isBulkPath matches "/a/:k/folders/.../bulk" — the last segment must
// literally be "bulk".
func isBulkPath(segs []string) bool {
	return len(segs) >= 4 && segs[0] == "a" && segs[len(segs)-1] == "bulk"
}

// isWebhookCreatePath matches "/w/:k/webhooks", "/w/:k/folders/.../webhooks"
// and "/workspaces/:id/webhooks".
func isWebhookCreatePath(segs []string) bool {
	if len(segs) == 3 && segs[0] == "w" && segs[2] == "webhooks" {
		return true
	}
	if len(segs) >= 4 && segs[0] == "w" && segs[len(segs)-1] == "webhooks" {
		return true
	}
	if len(segs) == 3 && segs[0] == "workspaces" && segs[2] == "webhooks" {
		return true
	}
	return false
}

func isTier(s string) bool {
	return s == "r" || s == "a" || s == "w"
}

// IdentifierSource tags where an admission identifier came from, useful for
// logging without leaking the identifier's sensitivity class.
type IdentifierSource string

const (
	SourceAPIKey     IdentifierSource = "api_key"
	SourceCapability IdentifierSource = "capability_key"
	SourceIP         IdentifierSource = "ip"
)

// Identify selects the admission identifier per §4.E: an API key prefix,
// else a capability-key-looking path segment prefix, else the resolved IP.
func Identify(authorizationHeader string, path string, resolvedIP string) (string, IdentifierSource) {
	if authorizationHeader != "" {
		const bearer = "Bearer "
		if strings.HasPrefix(authorizationHeader, bearer) {
			candidate := authorizationHeader[len(bearer):]
			if apiKeyPattern.MatchString(candidate) {
				return firstN(candidate, 16), SourceAPIKey
			}
		}
	}

	for _, seg := range splitPath(path) {
		if capabilityPathSegment.MatchString(seg) {
			return firstN(seg, 6), SourceCapability
		}
	}

	return resolvedIP, SourceIP
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
