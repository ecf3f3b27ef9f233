package pgstore

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// AppendStore manages the per-file append-only event log backing tasks,
// claims and the rest of the status state machine.
type AppendStore struct {
	pool *pgxpool.Pool
}

func NewAppendStore(pool *pgxpool.Pool) *AppendStore {
	return &AppendStore{pool: pool}
}

// ExpireActiveClaims selects every claim append still in "active" status
// whose expiresAt has passed, flips its status to "expired" and returns
// the rows so the scheduler can reopen their parent tasks. The status
// flip and the select happen in one statement so a concurrent scheduler
// tick (or a renew landing mid-tick) can't double-process the same row.
func (s *AppendStore) ExpireActiveClaims(ctx context.Context, now time.Time) ([]domain.Append, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE appends
		SET status = 'expired'
		WHERE type = 'claim' AND status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING append_id, file_id, workspace_id, type, status, ref, author, priority, labels, expires_at, content, created_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Append
	for rows.Next() {
		var a domain.Append
		if err := rows.Scan(
			&a.AppendID, &a.FileID, &a.WorkspaceID, &a.Type, &a.Status, &a.Ref, &a.Author,
			&a.Priority, &a.Labels, &a.ExpiresAt, &a.Content, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReopenTask flips the referenced task append's status back to "pending".
func (s *AppendStore) ReopenTask(ctx context.Context, taskAppendID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appends SET status = 'pending' WHERE append_id = $1 AND type = 'task'
	`, taskAppendID)
	return err
}

// NextAppendID allocates the next sequential "a<n>" identifier for a
// file's append log.
func (s *AppendStore) NextAppendID(ctx context.Context, fileID string) (string, error) {
	var next int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO append_sequences (file_id, next_seq) VALUES ($1, 2)
		ON CONFLICT (file_id) DO UPDATE SET next_seq = append_sequences.next_seq + 1
		RETURNING next_seq - 1
	`, fileID).Scan(&next)
	if err != nil {
		return "", err
	}
	return "a" + strconv.Itoa(next), nil
}

// FileStore manages soft-deleted file tombstones for the reaper.
type FileStore struct {
	pool *pgxpool.Pool
}

func NewFileStore(pool *pgxpool.Pool) *FileStore {
	return &FileStore{pool: pool}
}

func (s *FileStore) HardDeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM files WHERE deleted_at IS NOT NULL AND deleted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
