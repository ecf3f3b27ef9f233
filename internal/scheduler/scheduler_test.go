package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/eventbus"
)

type fakeAppendStore struct {
	active    []domain.Append
	reopened  []string
	calls     int
}

func (f *fakeAppendStore) ExpireActiveClaims(ctx context.Context, now time.Time) ([]domain.Append, error) {
	f.calls++
	var due []domain.Append
	var remaining []domain.Append
	for _, a := range f.active {
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			due = append(due, a)
			continue
		}
		remaining = append(remaining, a)
	}
	f.active = remaining
	return due, nil
}

func (f *fakeAppendStore) ReopenTask(ctx context.Context, taskAppendID string, now time.Time) error {
	f.reopened = append(f.reopened, taskAppendID)
	return nil
}

func (f *fakeAppendStore) NextAppendID(ctx context.Context, fileID string) (string, error) {
	return "a1", nil
}

type fakeRateLimitStore struct {
	deletedCalls int
}

func (f *fakeRateLimitStore) CheckAndConsume(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (domain.RateLimitCounter, bool, error) {
	return domain.RateLimitCounter{}, true, nil
}
func (f *fakeRateLimitStore) Peek(ctx context.Context, key string, now time.Time, window time.Duration) (domain.RateLimitCounter, bool, error) {
	return domain.RateLimitCounter{}, false, nil
}
func (f *fakeRateLimitStore) DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error) {
	f.deletedCalls++
	return 3, nil
}

type fakeFileStore struct{ cutoffSeen time.Time }

func (f *fakeFileStore) HardDeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return 2, nil
}

type fakeDeliveryStore struct{ cutoffSeen time.Time }

func (f *fakeDeliveryStore) Insert(ctx context.Context, d domain.WebhookDelivery) error { return nil }
func (f *fakeDeliveryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return 1, nil
}

func TestExpireClaims_ReopensTaskAndPublishesEvent(t *testing.T) {
	expiredAt := time.Now().Add(-time.Minute)
	appends := &fakeAppendStore{active: []domain.Append{
		{AppendID: "a2", WorkspaceID: "ws1", FileID: "/todo.md", Ref: "a1", ExpiresAt: &expiredAt},
	}}
	bus := eventbus.New()
	var got domain.Event
	bus.Subscribe(func(e domain.Event) { got = e })

	s := New(Config{}, appends, &fakeRateLimitStore{}, &fakeFileStore{}, &fakeDeliveryStore{}, bus)
	s.ExpireClaims(context.Background())

	if len(appends.reopened) != 1 || appends.reopened[0] != "a1" {
		t.Fatalf("expected task a1 to be reopened, got %v", appends.reopened)
	}
	if got.Name != "claim.expired" {
		t.Fatalf("expected claim.expired event, got %q", got.Name)
	}
}

func TestExpireClaims_IdempotentOnRerun(t *testing.T) {
	expiredAt := time.Now().Add(-time.Minute)
	appends := &fakeAppendStore{active: []domain.Append{
		{AppendID: "a2", WorkspaceID: "ws1", FileID: "/todo.md", Ref: "a1", ExpiresAt: &expiredAt},
	}}
	s := New(Config{}, appends, &fakeRateLimitStore{}, &fakeFileStore{}, &fakeDeliveryStore{}, nil)

	s.ExpireClaims(context.Background())
	s.ExpireClaims(context.Background())

	if len(appends.reopened) != 1 {
		t.Fatalf("expected exactly one reopen across two ticks, got %d", len(appends.reopened))
	}
}

func TestCleanupJobs_DelegateToStores(t *testing.T) {
	rates := &fakeRateLimitStore{}
	files := &fakeFileStore{}
	deliveries := &fakeDeliveryStore{}
	s := New(Config{SoftDeleteRetention: time.Hour, DeliveryLogRetention: time.Hour}, &fakeAppendStore{}, rates, files, deliveries, nil)

	s.CleanupRateLimits(context.Background())
	if rates.deletedCalls != 1 {
		t.Fatal("expected DeleteExpired to be called")
	}

	s.CleanupDeletedFiles(context.Background())
	if files.cutoffSeen.IsZero() {
		t.Fatal("expected a cutoff to be computed for soft-deleted files")
	}

	s.CleanupWebhookDeliveries(context.Background())
	if deliveries.cutoffSeen.IsZero() {
		t.Fatal("expected a cutoff to be computed for delivery log reaping")
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.ExpireClaimsEvery != 30*time.Second {
		t.Errorf("expected default expire-claims cadence of 30s, got %v", c.ExpireClaimsEvery)
	}
	if c.CleanupRateLimitsEvery != 5*time.Minute {
		t.Errorf("expected default rate-limit cleanup cadence of 5m, got %v", c.CleanupRateLimitsEvery)
	}
}
