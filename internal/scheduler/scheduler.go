// Package scheduler runs the background janitors (§4.K): claim expiry,
// rate-limit counter GC, soft-deleted file reaping and webhook delivery
// log reaping. Each job is re-entrant safe and takes its own "now" at
// entry so overlapping runs never compound.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/eventbus"
	"github.com/albri/mdplane-sub004/internal/observability"
	"github.com/albri/mdplane-sub004/internal/store"
)

// Config controls job cadence. Zero values fall back to the §4.K defaults.
type Config struct {
	ExpireClaimsEvery       time.Duration
	CleanupRateLimitsEvery  time.Duration
	CleanupDeletedFilesEvery time.Duration
	CleanupDeliveriesEvery  time.Duration
	// RateLimitMaxWindow bounds how far back a rate-limit row must be
	// kept before DeleteExpired can reap it.
	RateLimitMaxWindow time.Duration
	// SoftDeleteRetention is how long a soft-deleted file tombstone is
	// kept before being hard-deleted.
	SoftDeleteRetention time.Duration
	// DeliveryLogRetention is how long webhook delivery records are kept.
	DeliveryLogRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExpireClaimsEvery == 0 {
		c.ExpireClaimsEvery = 30 * time.Second
	}
	if c.CleanupRateLimitsEvery == 0 {
		c.CleanupRateLimitsEvery = 5 * time.Minute
	}
	if c.CleanupDeletedFilesEvery == 0 {
		c.CleanupDeletedFilesEvery = time.Hour
	}
	if c.CleanupDeliveriesEvery == 0 {
		c.CleanupDeliveriesEvery = time.Hour
	}
	if c.RateLimitMaxWindow == 0 {
		c.RateLimitMaxWindow = time.Hour
	}
	if c.SoftDeleteRetention == 0 {
		c.SoftDeleteRetention = 7 * 24 * time.Hour
	}
	if c.DeliveryLogRetention == 0 {
		c.DeliveryLogRetention = 7 * 24 * time.Hour
	}
	return c
}

// Scheduler wraps a robfig/cron runner with the four janitor jobs wired
// to the store interfaces.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	appends store.AppendStore
	rates  store.RateLimitStore
	files  store.FileStore
	deliveries store.WebhookDeliveryStore
	bus    *eventbus.Bus
	now    func() time.Time
}

// New builds a Scheduler. bus may be nil if claim-expiry events don't need
// to be published (e.g. in tests exercising only the store side effect).
func New(cfg Config, appends store.AppendStore, rates store.RateLimitStore, files store.FileStore, deliveries store.WebhookDeliveryStore, bus *eventbus.Bus) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg.withDefaults(),
		appends:    appends,
		rates:      rates,
		files:      files,
		deliveries: deliveries,
		bus:        bus,
		now:        time.Now,
	}
}

// Start registers all jobs and starts the cron runner. Call Stop to shut
// down gracefully.
func (s *Scheduler) Start() {
	s.schedule(s.cfg.ExpireClaimsEvery, "expire_claims", s.ExpireClaims)
	s.schedule(s.cfg.CleanupRateLimitsEvery, "cleanup_rate_limits", s.CleanupRateLimits)
	s.schedule(s.cfg.CleanupDeletedFilesEvery, "cleanup_deleted_files", s.CleanupDeletedFiles)
	s.schedule(s.cfg.CleanupDeliveriesEvery, "cleanup_webhook_deliveries", s.CleanupWebhookDeliveries)
	s.cron.Start()
}

// Stop blocks until any in-flight job finishes, then returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) schedule(every time.Duration, name string, job func(ctx context.Context)) {
	spec := "@every " + every.String()
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		outcome := "ok"
		defer func() {
			if r := recover(); r != nil {
				outcome = "panic"
				log.Error().Interface("panic", r).Str("job", name).Msg("scheduler: job panicked")
			}
			observability.SchedulerJobRuns.WithLabelValues(name, outcome).Inc()
		}()
		job(ctx)
	})
	if err != nil {
		log.Error().Err(err).Str("job", name).Str("spec", spec).Msg("scheduler: failed to register job")
	}
}

// ExpireClaims reopens the parent task of every active claim whose
// expiresAt has passed as of now, and publishes a claim.expired event for
// each. Re-running this against the same already-expired claim is a
// no-op: ExpireActiveClaims only selects claims still in the active
// status, so a claim it reopened on a prior tick will not be selected
// again.
func (s *Scheduler) ExpireClaims(ctx context.Context) {
	now := s.now()
	expired, err := s.appends.ExpireActiveClaims(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: expire_claims failed")
		return
	}
	for _, claim := range expired {
		if err := s.appends.ReopenTask(ctx, claim.Ref, now); err != nil {
			log.Error().Err(err).Str("claimId", claim.AppendID).Str("taskId", claim.Ref).Msg("scheduler: failed to reopen task after claim expiry")
			continue
		}
		if s.bus != nil {
			s.bus.Publish(domain.Event{
				WorkspaceID: claim.WorkspaceID,
				Name:        "claim.expired",
				Data: map[string]any{
					"path":     claim.FileID,
					"claimId":  claim.AppendID,
					"taskId":   claim.Ref,
				},
				At: now,
			})
		}
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("scheduler: expired claims reopened")
	}
}

// CleanupRateLimits deletes fixed-window counter rows whose window has
// closed relative to the configured max window, plus a grace period.
func (s *Scheduler) CleanupRateLimits(ctx context.Context) {
	now := s.now()
	n, err := s.rates.DeleteExpired(ctx, now, s.cfg.RateLimitMaxWindow)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: cleanup_rate_limits failed")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("scheduler: rate limit counters reaped")
	}
}

// CleanupDeletedFiles hard-deletes file tombstones whose soft-delete
// retention window has elapsed.
func (s *Scheduler) CleanupDeletedFiles(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.SoftDeleteRetention)
	n, err := s.files.HardDeleteSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: cleanup_deleted_files failed")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("scheduler: soft-deleted files hard-reaped")
	}
}

// CleanupWebhookDeliveries reaps delivery audit rows older than the
// configured retention.
func (s *Scheduler) CleanupWebhookDeliveries(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.DeliveryLogRetention)
	n, err := s.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: cleanup_webhook_deliveries failed")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("scheduler: webhook delivery log reaped")
	}
}
