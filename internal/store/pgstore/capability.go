package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// CapabilityKeyStore resolves capability keys by their SHA-256 hash and
// supports the bootstrap/rotation admin routes.
type CapabilityKeyStore struct {
	pool *pgxpool.Pool
}

func NewCapabilityKeyStore(pool *pgxpool.Pool) *CapabilityKeyStore {
	return &CapabilityKeyStore{pool: pool}
}

func (s *CapabilityKeyStore) FindByHash(ctx context.Context, keyHash string) (*domain.CapabilityKey, error) {
	var k domain.CapabilityKey
	var permission string
	var scopeType string
	var boundAuthor sql.NullString
	var wipLimit sql.NullInt32
	var allowedTypes []string
	var expiresAt, revokedAt sql.NullTime

	err := s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, key_hash, prefix, permission, scope_type, scope_path,
		       bound_author, wip_limit, allowed_types, created_at, expires_at, revoked_at
		FROM capability_keys
		WHERE key_hash = $1
	`, keyHash).Scan(
		&k.ID, &k.WorkspaceID, &k.KeyHash, &k.Prefix, &permission, &scopeType, &k.ScopePath,
		&boundAuthor, &wipLimit, &allowedTypes, &k.CreatedAt, &expiresAt, &revokedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if perm, ok := domain.ParsePermission(permission); ok {
		k.Permission = perm
	}
	k.ScopeType = domain.ScopeType(scopeType)

	if boundAuthor.Valid {
		k.BoundAuthor = &boundAuthor.String
	}
	if wipLimit.Valid {
		n := int(wipLimit.Int32)
		k.WIPLimit = &n
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		k.RevokedAt = &revokedAt.Time
	}
	k.AllowedTypes = allowedTypes

	return &k, nil
}

func (s *CapabilityKeyStore) Create(ctx context.Context, key domain.CapabilityKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO capability_keys
			(id, workspace_id, key_hash, prefix, permission, scope_type, scope_path,
			 bound_author, wip_limit, allowed_types, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, key.ID, key.WorkspaceID, key.KeyHash, key.Prefix, key.Permission.String(), key.ScopeType, key.ScopePath,
		key.BoundAuthor, key.WIPLimit, key.AllowedTypes, key.CreatedAt, key.ExpiresAt)
	return err
}

func (s *CapabilityKeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE capability_keys SET revoked_at = $2 WHERE id = $1`, id, at)
	return err
}
