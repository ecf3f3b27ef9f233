package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// MemStore is an in-process implementation of store.RateLimitStore. It
// satisfies the atomic-per-row contract via a single mutex; useful for
// tests and single-instance deployments where the shared persistent store
// is not yet wired up.
type MemStore struct {
	mu   sync.Mutex
	rows map[string]domain.RateLimitCounter
}

// NewMemStore builds an empty in-memory rate-limit store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]domain.RateLimitCounter)}
}

func (m *MemStore) CheckAndConsume(_ context.Context, key string, now time.Time, window time.Duration, limit int) (domain.RateLimitCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	row, exists := m.rows[key]
	if !exists || row.WindowStart < cutoff {
		row = domain.RateLimitCounter{Key: key, Count: 1, WindowStart: nowMs}
		m.rows[key] = row
		return row, true, nil
	}

	if row.Count >= limit {
		return row, false, nil
	}

	row.Count++
	m.rows[key] = row
	return row, true, nil
}

func (m *MemStore) Peek(_ context.Context, key string, now time.Time, window time.Duration) (domain.RateLimitCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.UnixMilli() - window.Milliseconds()
	row, exists := m.rows[key]
	if !exists || row.WindowStart < cutoff {
		return domain.RateLimitCounter{}, false, nil
	}
	return row, true, nil
}

func (m *MemStore) DeleteExpired(_ context.Context, now time.Time, maxWindow time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.UnixMilli() - maxWindow.Milliseconds()
	var n int64
	for k, row := range m.rows {
		if row.WindowStart < cutoff {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}
