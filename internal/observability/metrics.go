// Package observability exposes the prometheus metrics the admission,
// webhook and scheduler layers record, grounded on the client_golang
// counter/histogram idiom used across the pack's operator/controller repos.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdplane_admission_rejections_total",
		Help: "Requests rejected by the admission middleware, by reason.",
	}, []string{"reason"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdplane_rate_limit_exceeded_total",
		Help: "Requests rejected for exceeding a rate limit, by operation.",
	}, []string{"operation"})

	CapabilityDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdplane_capability_decisions_total",
		Help: "Capability evaluation outcomes, by decision.",
	}, []string{"decision"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdplane_webhook_deliveries_total",
		Help: "Webhook delivery attempts, by outcome status.",
	}, []string{"status"})

	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mdplane_webhook_delivery_duration_seconds",
		Help:    "Webhook delivery attempt latency.",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdplane_scheduler_job_runs_total",
		Help: "Background job executions, by job name and outcome.",
	}, []string{"job", "outcome"})

	WSActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mdplane_ws_active_subscriptions",
		Help: "Currently connected WebSocket subscribers.",
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
