package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
)

// fakeCapabilityKeyStore is an in-memory store.CapabilityKeyStore used by
// every handler test in this package instead of pgstore.
type fakeCapabilityKeyStore struct {
	mu   sync.Mutex
	keys map[string]domain.CapabilityKey // keyHash -> key
}

func newFakeCapabilityKeyStore(keys ...domain.CapabilityKey) *fakeCapabilityKeyStore {
	s := &fakeCapabilityKeyStore{keys: make(map[string]domain.CapabilityKey)}
	for _, k := range keys {
		s.keys[k.KeyHash] = k
	}
	return s
}

func (s *fakeCapabilityKeyStore) FindByHash(ctx context.Context, keyHash string) (*domain.CapabilityKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (s *fakeCapabilityKeyStore) Create(ctx context.Context, key domain.CapabilityKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.KeyHash] = key
	return nil
}

func (s *fakeCapabilityKeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, k := range s.keys {
		if k.ID == id {
			k.RevokedAt = &at
			s.keys[hash] = k
		}
	}
	return nil
}

// fakeWebhookStore is an in-memory store.WebhookStore.
type fakeWebhookStore struct {
	mu       sync.Mutex
	webhooks map[string]domain.Webhook
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{webhooks: make(map[string]domain.Webhook)}
}

func (s *fakeWebhookStore) ActiveForWorkspace(ctx context.Context, workspaceID string) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, wh := range s.webhooks {
		if wh.WorkspaceID == workspaceID && wh.DeletedAt == nil {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (s *fakeWebhookStore) Create(ctx context.Context, wh domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[wh.ID] = wh
	return nil
}

func (s *fakeWebhookStore) RecordOutcome(ctx context.Context, webhookID string, ok bool, failureCount int, disabledAt *time.Time, lastTriggeredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wh := s.webhooks[webhookID]
	wh.FailureCount = failureCount
	wh.DisabledAt = disabledAt
	wh.LastTriggeredAt = &lastTriggeredAt
	s.webhooks[webhookID] = wh
	return nil
}

func (s *fakeWebhookStore) DeleteSoft(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wh, ok := s.webhooks[id]
	if !ok {
		return nil
	}
	wh.DeletedAt = &at
	s.webhooks[id] = wh
	return nil
}

func (s *fakeWebhookStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.webhooks)
}
