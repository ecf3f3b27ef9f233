package admission

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/clientip"
	"github.com/albri/mdplane-sub004/internal/observability"
	"github.com/albri/mdplane-sub004/internal/ratelimit"
)

// contextKey namespaces values this middleware attaches to the request context.
type contextKey string

const (
	ctxOperation  contextKey = "admission.operation"
	ctxIdentifier contextKey = "admission.identifier"
)

// Config wires the IP policy and the toggle for the anonymous-IP 503 guard.
type Config struct {
	IPPolicy                        clientip.Policy
	RequireTrustedIPForAnonymousOps bool
	CustomLimits                    map[ratelimit.Operation]ratelimit.Limit
}

// Middleware composes the IP resolver, operation classifier and rate-limit
// engine ahead of every non-exempt route (§4.F). It never authenticates
// capability keys itself — that is left to route handlers calling the
// evaluator with their own required permission.
func Middleware(engine *ratelimit.Engine, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			op := Classify(r.Method, r.URL.Path)
			resolvedIP := clientip.Resolve(r.Header, cfg.IPPolicy)
			identifier, source := Identify(r.Header.Get("Authorization"), r.URL.Path, resolvedIP)

			if source == SourceIP && resolvedIP == clientip.Unknown && cfg.RequireTrustedIPForAnonymousOps &&
				(op == ratelimit.OpBootstrap || op == ratelimit.OpCapabilityCheck) {
				observability.AdmissionRejections.WithLabelValues("untrusted_ip").Inc()
				writeServerError(w, r)
				return
			}

			var customLimit *ratelimit.Limit
			if l, ok := cfg.CustomLimits[op]; ok {
				customLimit = &l
			}

			result, err := engine.Check(r.Context(), identifier, op, customLimit)
			if err != nil {
				log.Error().Err(err).Str("op", string(op)).Msg("admission: rate-limit check failed")
				writeServerError(w, r)
				return
			}

			ratelimit.BuildHeaders(w, result)

			if !result.Allowed {
				observability.RateLimitExceeded.WithLabelValues(string(op)).Inc()
				log.Warn().
					Str("op", string(op)).
					Str("identifierSource", string(source)).
					Int64("retryAfter", result.RetryAfterSec).
					Msg("admission: rate limit exceeded")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(ratelimit.BuildErrorBody(result))
				return
			}

			ctx := r.Context()
			ctx = setOperation(ctx, op)
			ctx = setIdentifier(ctx, identifier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeServerError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]any{
		"ok": false,
		"error": map[string]string{
			"code":    "SERVER_ERROR",
			"message": "Unable to establish a trusted client IP; configure trusted proxy headers.",
		},
	})
}
