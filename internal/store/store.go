// Package store defines the persistence contracts the core depends on.
// The engine backing these interfaces is out of scope (§1): the core is
// agnostic to which relational database implements them. internal/store/pgstore
// provides a pgx-backed implementation for this repo's bootstrap/admin
// surfaces; tests use in-memory fakes.
package store

import (
	"context"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// RateLimitStore persists fixed-window counters keyed by "<operation>:<identifier>".
// CheckAndConsume must be atomic per row (single UPSERT semantics) — concurrent
// callers may race and the last write wins (spec §5 concurrency model).
type RateLimitStore interface {
	// CheckAndConsume loads (or creates) the row for key, applies the fixed-window
	// algorithm and returns the resulting counter state after this request is
	// accounted for (whether or not it was allowed).
	CheckAndConsume(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (domain.RateLimitCounter, bool /* allowed */, error)
	// Peek returns the current counter state without mutating it.
	Peek(ctx context.Context, key string, now time.Time, window time.Duration) (domain.RateLimitCounter, bool /* found */, error)
	// DeleteExpired removes rows whose window has closed relative to maxWindow.
	DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error)
}

// CapabilityKeyStore resolves capability keys by their hash for evaluation,
// and supports the admin operations the bootstrap/rotation routes need.
type CapabilityKeyStore interface {
	FindByHash(ctx context.Context, keyHash string) (*domain.CapabilityKey, error)
	Create(ctx context.Context, key domain.CapabilityKey) error
	Revoke(ctx context.Context, id string, at time.Time) error
}

// WebhookStore manages webhook subscription records.
type WebhookStore interface {
	ActiveForWorkspace(ctx context.Context, workspaceID string) ([]domain.Webhook, error)
	Create(ctx context.Context, wh domain.Webhook) error
	RecordOutcome(ctx context.Context, webhookID string, ok bool, failureCount int, disabledAt *time.Time, lastTriggeredAt time.Time) error
	DeleteSoft(ctx context.Context, id string, at time.Time) error
}

// WebhookDeliveryStore persists the immutable delivery audit log.
type WebhookDeliveryStore interface {
	Insert(ctx context.Context, d domain.WebhookDelivery) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AppendStore manages the per-file append-only event log and the claim/task
// state machine driven by it.
type AppendStore interface {
	ExpireActiveClaims(ctx context.Context, now time.Time) ([]domain.Append, error)
	ReopenTask(ctx context.Context, taskAppendID string, now time.Time) error
	NextAppendID(ctx context.Context, fileID string) (string, error)
}

// FileStore manages soft-deleted file tombstones for the reaper.
type FileStore interface {
	HardDeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
