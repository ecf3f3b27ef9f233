package webhook

import (
	"strings"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// SubscriptionMatches reports whether webhook events subscribes to event e
// ("<category>.<name>"), matching "*", the exact event, or its category.
func SubscriptionMatches(events []string, e string) bool {
	category := e
	if idx := strings.Index(e, "."); idx >= 0 {
		category = e[:idx]
	}
	for _, sub := range events {
		if sub == "*" || sub == e || sub == category {
			return true
		}
	}
	return false
}

// ScopeMatches implements the §4.I folder-scope filter, including its
// edge cases for the workspace-root folder ("" or "/").
func ScopeMatches(scopeType domain.ScopeType, scopePath string, recursive bool, path string) bool {
	switch scopeType {
	case domain.ScopeWorkspace:
		return true
	case domain.ScopeFile:
		return path == scopePath
	case domain.ScopeFolder:
		normalized := strings.TrimSuffix(scopePath, "/")
		if normalized == "" {
			if recursive {
				return true
			}
			return !strings.Contains(strings.TrimPrefix(path, "/"), "/")
		}
		if !strings.HasPrefix(path, normalized+"/") {
			return false
		}
		if recursive {
			return true
		}
		tail := strings.TrimPrefix(path, normalized+"/")
		return !strings.Contains(tail, "/")
	default:
		return false
	}
}
