// Package webhook implements the webhook trigger (§4.I): on every domain
// event it enumerates matching webhooks, delivers with an HMAC signature
// guarded by the SSRF validator, records the outcome and trips the
// consecutive-failure breaker.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/observability"
	"github.com/albri/mdplane-sub004/internal/ssrf"
	"github.com/albri/mdplane-sub004/internal/store"
)

const disableThreshold = 5

// Trigger subscribes to the event bus and delivers matching webhooks.
type Trigger struct {
	webhooks   store.WebhookStore
	deliveries store.WebhookDeliveryStore
	ssrfConfig ssrf.Config
	client     *http.Client
	now        func() time.Time
}

// New builds a Trigger. The caller is responsible for calling
// bus.Subscribe(trigger.Handle).
func New(webhooks store.WebhookStore, deliveries store.WebhookDeliveryStore, ssrfConfig ssrf.Config) *Trigger {
	return &Trigger{
		webhooks:   webhooks,
		deliveries: deliveries,
		ssrfConfig: ssrfConfig,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Handle is an eventbus.Subscriber: it enqueues one delivery attempt per
// matching webhook. Per §9, the trigger's per-event work is to enqueue,
// not to await delivery, so each delivery runs on its own goroutine and
// publisher throughput is preserved.
func (t *Trigger) Handle(e domain.Event) {
	ctx := context.Background()
	webhooks, err := t.webhooks.ActiveForWorkspace(ctx, e.WorkspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspaceId", e.WorkspaceID).Msg("webhook: failed to list webhooks for event")
		return
	}

	path, _ := e.Data["path"].(string)

	for _, wh := range webhooks {
		if wh.DisabledAt != nil || wh.DeletedAt != nil {
			continue
		}
		if !SubscriptionMatches(wh.Events, e.Name) {
			continue
		}
		if !ScopeMatches(wh.ScopeType, wh.ScopePath, wh.Recursive, path) {
			continue
		}
		go t.deliver(wh, e)
	}
}

func (t *Trigger) deliver(wh domain.Webhook, e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := ssrf.ValidateWebhookUrl(ctx, wh.URL, t.ssrfConfig)
	if !result.Safe {
		reason := fmt.Sprintf("SSRF protection: %s", result.Reason)
		t.recordDelivery(ctx, wh.ID, e.Name, domain.DeliveryError, nil, 0, &reason)
		t.recordFailure(ctx, wh)
		return
	}

	ts := t.now()
	body, err := json.Marshal(map[string]any{
		"event":     e.Name,
		"timestamp": ts.UTC().Format(time.RFC3339),
		"data":      e.Data,
	})
	if err != nil {
		errStr := err.Error()
		t.recordDelivery(ctx, wh.ID, e.Name, domain.DeliveryError, nil, 0, &errStr)
		t.recordFailure(ctx, wh)
		return
	}

	sig := Sign(ts.Unix(), body, wh.SecretHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		errStr := err.Error()
		t.recordDelivery(ctx, wh.ID, e.Name, domain.DeliveryError, nil, 0, &errStr)
		t.recordFailure(ctx, wh)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", "wh_"+wh.ID)
	req.Header.Set("X-MP-Timestamp", fmt.Sprintf("%d", ts.Unix()))
	req.Header.Set("X-MP-Signature", sig)

	start := time.Now()
	resp, err := t.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		status := classifyError(err)
		errStr := err.Error()
		t.recordDelivery(ctx, wh.ID, e.Name, status, nil, duration.Milliseconds(), &errStr)
		t.recordFailure(ctx, wh)
		return
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if code >= 200 && code < 300 {
		t.recordDelivery(ctx, wh.ID, e.Name, domain.DeliveryOK, &code, duration.Milliseconds(), nil)
		t.recordSuccess(ctx, wh)
		return
	}

	errStr := fmt.Sprintf("non-2xx response: %d", code)
	t.recordDelivery(ctx, wh.ID, e.Name, domain.DeliveryFailed, &code, duration.Milliseconds(), &errStr)
	t.recordFailure(ctx, wh)
}

func classifyError(err error) domain.DeliveryStatus {
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return domain.DeliveryTimeout
	}
	return domain.DeliveryFailed
}

func (t *Trigger) recordDelivery(ctx context.Context, webhookID, event string, status domain.DeliveryStatus, code *int, durationMs int64, errStr *string) {
	d := domain.WebhookDelivery{
		ID:           uuid.NewString(),
		WebhookID:    webhookID,
		Event:        event,
		Status:       status,
		ResponseCode: code,
		DurationMs:   durationMs,
		Error:        errStr,
		CreatedAt:    t.now(),
	}
	if err := t.deliveries.Insert(ctx, d); err != nil {
		log.Error().Err(err).Str("webhookId", webhookID).Msg("webhook: failed to record delivery")
	}
	observability.WebhookDeliveries.WithLabelValues(string(status)).Inc()
	if durationMs > 0 {
		observability.WebhookDeliveryDuration.Observe(float64(durationMs) / 1000)
	}
}

func (t *Trigger) recordSuccess(ctx context.Context, wh domain.Webhook) {
	if err := t.webhooks.RecordOutcome(ctx, wh.ID, true, 0, nil, t.now()); err != nil {
		log.Error().Err(err).Str("webhookId", wh.ID).Msg("webhook: failed to record success outcome")
	}
}

func (t *Trigger) recordFailure(ctx context.Context, wh domain.Webhook) {
	count := wh.FailureCount + 1
	var disabledAt *time.Time
	if count >= disableThreshold {
		now := t.now()
		disabledAt = &now
	}
	if err := t.webhooks.RecordOutcome(ctx, wh.ID, false, count, disabledAt, wh.LastTriggeredAtOrZero()); err != nil {
		log.Error().Err(err).Str("webhookId", wh.ID).Msg("webhook: failed to record failure outcome")
	}
}
