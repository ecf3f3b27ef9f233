package httpapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/observability"
)

var validate = validator.New()

type capabilityCheckRequest struct {
	Key string `json:"key" validate:"required"`
}

type capabilityCheckResponse struct {
	OK   bool   `json:"ok"`
	Data *capabilityCheckData `json:"data,omitempty"`
}

type capabilityCheckData struct {
	Permission string `json:"permission"`
	ScopeType  string `json:"scopeType"`
	ScopePath  string `json:"scopePath,omitempty"`
}

// CapabilitiesCheck handles POST /capabilities/check and
// POST /w/:k/capabilities/check: reports whether a capability key is
// currently valid, without revealing which of the §4.C rejection causes
// applied (the handler calls the same evaluator the rest of the system
// uses, so the response shape never diverges from normal request handling).
func (s *Server) CapabilitiesCheck(w http.ResponseWriter, r *http.Request) {
	var req capabilityCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "key is required")
		return
	}

	hash := capability.HashKey(req.Key)
	key, err := s.CapabilityKeys.FindByHash(r.Context(), hash)
	if err != nil {
		log.Error().Err(err).Msg("capabilities/check: store lookup failed")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "lookup failed")
		return
	}

	decision := capability.Evaluate(key, tierFromKey(key), domain.PermissionRead, "", time.Now().UTC())
	if !decision.Ok {
		observability.CapabilityDecisions.WithLabelValues(string(decision.Code)).Inc()
		writeAPIError(w, decision.Status, string(decision.Code), decision.Message)
		return
	}

	observability.CapabilityDecisions.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, capabilityCheckResponse{
		OK: true,
		Data: &capabilityCheckData{
			Permission: key.Permission.String(),
			ScopeType:  string(key.ScopeType),
			ScopePath:  key.ScopePath,
		},
	})
}

// tierFromKey derives the URL tier this evaluation should use as the
// minimum-permission gate. /capabilities/check has no path tier of its
// own, so it checks against the key's own permission (a key is always
// valid against its own tier).
func tierFromKey(key *domain.CapabilityKey) string {
	if key == nil {
		return "r"
	}
	switch key.Permission {
	case domain.PermissionWrite:
		return "w"
	case domain.PermissionAppend:
		return "a"
	default:
		return "r"
	}
}
