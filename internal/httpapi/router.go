package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/albri/mdplane-sub004/internal/admission"
	"github.com/albri/mdplane-sub004/internal/eventbus"
	"github.com/albri/mdplane-sub004/internal/observability"
	"github.com/albri/mdplane-sub004/internal/ratelimit"
	"github.com/albri/mdplane-sub004/internal/ssrf"
	"github.com/albri/mdplane-sub004/internal/store"
	"github.com/albri/mdplane-sub004/internal/wstoken"
)

// Server holds the dependencies HTTP handlers need: the store interfaces
// for admission/distribution state, the rate-limit engine and admission
// config that drive the middleware, and the WS-token service and event
// bus that drive the subscribe/ws routes.
type Server struct {
	CapabilityKeys    store.CapabilityKeyStore
	Webhooks          store.WebhookStore
	WebhookDeliveries store.WebhookDeliveryStore
	Appends           store.AppendStore
	Files             store.FileStore

	RateLimitEngine *ratelimit.Engine
	AdmissionConfig admission.Config

	WSTokens *wstoken.Service
	EventBus *eventbus.Bus

	SSRFConfig ssrf.Config
}

// Routes builds the top-level HTTP handler: stdlib-compatible middleware
// chain, then the capability-URL, bootstrap, webhook, subscribe, WS,
// health and metrics routes (§4.E).
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		MaxAge:           300,
	}))
	r.Use(admission.Middleware(s.RateLimitEngine, s.AdmissionConfig))

	r.Get("/health", s.Health)
	r.Handle("/metrics", observability.Handler())

	r.Post("/bootstrap", s.Bootstrap)
	r.Post("/capabilities/check", s.CapabilitiesCheck)

	r.Route("/{tier}/{key}", func(r chi.Router) {
		r.Post("/capabilities/check", s.CapabilitiesCheck)

		r.Get("/ops/subscribe", s.Subscribe)
		r.Get("/ops/folders/subscribe", s.Subscribe)

		r.Post("/webhooks", s.CreateWebhook)
		r.Get("/webhooks", s.ListWebhooks)
		r.Delete("/webhooks/{webhookId}", s.DeleteWebhook)
	})

	r.Get("/ws", s.ServeWS)

	return r
}
