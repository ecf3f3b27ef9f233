package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// WebhookStore manages webhook subscription rows.
type WebhookStore struct {
	pool *pgxpool.Pool
}

func NewWebhookStore(pool *pgxpool.Pool) *WebhookStore {
	return &WebhookStore{pool: pool}
}

func (s *WebhookStore) ActiveForWorkspace(ctx context.Context, workspaceID string) ([]domain.Webhook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workspace_id, url, events, scope_type, scope_path, recursive,
		       secret_hash, failure_count, disabled_at, last_triggered_at, created_at
		FROM webhooks
		WHERE workspace_id = $1 AND deleted_at IS NULL
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Webhook
	for rows.Next() {
		var wh domain.Webhook
		var disabledAt, lastTriggeredAt sql.NullTime
		if err := rows.Scan(
			&wh.ID, &wh.WorkspaceID, &wh.URL, &wh.Events, &wh.ScopeType, &wh.ScopePath, &wh.Recursive,
			&wh.SecretHash, &wh.FailureCount, &disabledAt, &lastTriggeredAt, &wh.CreatedAt,
		); err != nil {
			return nil, err
		}
		if disabledAt.Valid {
			wh.DisabledAt = &disabledAt.Time
		}
		if lastTriggeredAt.Valid {
			wh.LastTriggeredAt = &lastTriggeredAt.Time
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (s *WebhookStore) Create(ctx context.Context, wh domain.Webhook) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhooks (id, workspace_id, url, events, scope_type, scope_path, recursive, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, wh.ID, wh.WorkspaceID, wh.URL, wh.Events, wh.ScopeType, wh.ScopePath, wh.Recursive, wh.SecretHash, wh.CreatedAt)
	return err
}

func (s *WebhookStore) RecordOutcome(ctx context.Context, webhookID string, ok bool, failureCount int, disabledAt *time.Time, lastTriggeredAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhooks
		SET failure_count = $2, disabled_at = $3, last_triggered_at = $4
		WHERE id = $1
	`, webhookID, failureCount, disabledAt, lastTriggeredAt)
	return err
}

func (s *WebhookStore) DeleteSoft(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE webhooks SET deleted_at = $2 WHERE id = $1`, id, at)
	return err
}

// WebhookDeliveryStore persists the immutable delivery audit log.
type WebhookDeliveryStore struct {
	pool *pgxpool.Pool
}

func NewWebhookDeliveryStore(pool *pgxpool.Pool) *WebhookDeliveryStore {
	return &WebhookDeliveryStore{pool: pool}
}

func (s *WebhookDeliveryStore) Insert(ctx context.Context, d domain.WebhookDelivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event, status, response_code, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.WebhookID, d.Event, d.Status, d.ResponseCode, d.DurationMs, d.Error, d.CreatedAt)
	return err
}

func (s *WebhookDeliveryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_deliveries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
