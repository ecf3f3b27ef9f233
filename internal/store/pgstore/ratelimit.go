// Package pgstore implements the internal/store interfaces against
// PostgreSQL via pgx, in the query/scan idiom of internal/httpapi's
// session and sync-state handlers (QueryRow().Scan, pgx.ErrNoRows
// checks, zerolog error logging).
package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// RateLimitStore persists fixed-window counters in a single table keyed
// by (bucket_key). CheckAndConsume does the load-or-create-and-increment
// in one UPSERT so concurrent requests racing on the same row serialize
// at the database rather than in application code (spec §5 concurrency
// model: atomic per row, last write wins on a race).
type RateLimitStore struct {
	pool *pgxpool.Pool
}

func NewRateLimitStore(pool *pgxpool.Pool) *RateLimitStore {
	return &RateLimitStore{pool: pool}
}

func (s *RateLimitStore) CheckAndConsume(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (domain.RateLimitCounter, bool, error) {
	windowMs := window.Milliseconds()
	nowMs := now.UnixMilli()
	windowStart := (nowMs / windowMs) * windowMs

	var count int
	var gotWindowStart int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_limit_counters (bucket_key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (bucket_key) DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_start = $2 THEN rate_limit_counters.count + 1
				ELSE 1
			END,
			window_start = $2
		RETURNING count, window_start
	`, key, windowStart).Scan(&count, &gotWindowStart)
	if err != nil {
		return domain.RateLimitCounter{}, false, err
	}

	counter := domain.RateLimitCounter{Key: key, Count: count, WindowStart: gotWindowStart}
	return counter, count <= limit, nil
}

func (s *RateLimitStore) Peek(ctx context.Context, key string, now time.Time, window time.Duration) (domain.RateLimitCounter, bool, error) {
	var count int
	var windowStart int64
	err := s.pool.QueryRow(ctx, `
		SELECT count, window_start FROM rate_limit_counters WHERE bucket_key = $1
	`, key).Scan(&count, &windowStart)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RateLimitCounter{}, false, nil
		}
		return domain.RateLimitCounter{}, false, err
	}

	windowMs := window.Milliseconds()
	currentWindow := (now.UnixMilli() / windowMs) * windowMs
	if windowStart != currentWindow {
		return domain.RateLimitCounter{Key: key}, false, nil
	}
	return domain.RateLimitCounter{Key: key, Count: count, WindowStart: windowStart}, true, nil
}

func (s *RateLimitStore) DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error) {
	cutoff := now.Add(-maxWindow).UnixMilli()
	tag, err := s.pool.Exec(ctx, `DELETE FROM rate_limit_counters WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
