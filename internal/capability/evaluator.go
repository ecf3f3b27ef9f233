package capability

import (
	"strings"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// ErrorCode is the small, closed set of capability-evaluation error codes.
type ErrorCode string

const (
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeKeyRevoked  ErrorCode = "KEY_REVOKED"
)

// Decision is the outcome of Evaluate: either Ok, or a Status/Code pair to
// surface unchanged to the HTTP layer.
type Decision struct {
	Ok      bool
	Status  int
	Code    ErrorCode
	Message string
}

var allow = Decision{Ok: true}

// notFound is returned for every rejection cause EXCEPT revoked, so that a
// capability URL can never be distinguished as "exists but wrong scope" vs
// "does not exist" (§4.C rationale, testable property 1).
func notFound() Decision {
	return Decision{Status: 404, Code: CodeNotFound, Message: "Key not found"}
}

func revoked() Decision {
	return Decision{Status: 410, Code: CodeKeyRevoked, Message: "Key has been revoked"}
}

// TierMinPermission maps a capability URL tier segment to the minimum
// permission that tier requires.
func TierMinPermission(tier string) (domain.Permission, bool) {
	switch tier {
	case "r":
		return domain.PermissionRead, true
	case "a":
		return domain.PermissionAppend, true
	case "w":
		return domain.PermissionWrite, true
	default:
		return 0, false
	}
}

// Evaluate applies the §4.C rules in order. key may be nil (key not
// found by the caller's lookup). requestedPath is the resource path
// segment after the key, or "" if the route has none.
func Evaluate(key *domain.CapabilityKey, urlTier string, requiredPermission domain.Permission, requestedPath string, now time.Time) Decision {
	if key == nil {
		return notFound()
	}

	if key.RevokedAt != nil {
		return revoked()
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(now) {
		// Expiry must be indistinguishable from non-existence (not 410).
		return notFound()
	}

	tierMin, ok := TierMinPermission(urlTier)
	if !ok {
		return notFound()
	}
	if key.Permission < tierMin {
		return notFound()
	}

	if key.Permission < requiredPermission {
		return notFound()
	}

	if !scopeMatches(key.ScopeType, key.ScopePath, requestedPath) {
		return notFound()
	}

	return allow
}

func scopeMatches(scopeType domain.ScopeType, scopePath, requestedPath string) bool {
	switch scopeType {
	case domain.ScopeWorkspace:
		return true
	case domain.ScopeFile:
		if requestedPath == "" {
			return true
		}
		return requestedPath == scopePath
	case domain.ScopeFolder:
		if requestedPath == "" {
			return true
		}
		if requestedPath == scopePath {
			return true
		}
		return strings.HasPrefix(requestedPath, scopePath+"/")
	default:
		return false
	}
}
