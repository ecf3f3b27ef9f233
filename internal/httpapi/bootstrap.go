package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
)

type bootstrapResponse struct {
	OK          bool   `json:"ok"`
	WorkspaceID string `json:"workspaceId"`
	WriteURL    string `json:"writeUrl"`
}

// Bootstrap handles POST /bootstrap: creates a new workspace and mints its
// first capability key at write/workspace scope. This is the only entry
// point that doesn't require an existing capability key, which is why it
// carries its own strict rate limit (§4.D, "bootstrap": 10/1h) and, when
// configured, refuses anonymous (unresolved-IP) callers with 503 rather
// than silently rate-limiting "unknown" globally.
func (s *Server) Bootstrap(w http.ResponseWriter, r *http.Request) {
	plaintext, err := capability.GenerateKey(32)
	if err != nil {
		log.Error().Err(err).Msg("bootstrap: failed to generate capability key")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to generate capability key")
		return
	}

	now := time.Now().UTC()
	key := domain.CapabilityKey{
		ID:          uuid.NewString(),
		WorkspaceID: uuid.NewString(),
		KeyHash:     capability.HashKey(plaintext),
		Prefix:      capability.Prefix(plaintext, 6),
		Permission:  domain.PermissionWrite,
		ScopeType:   domain.ScopeWorkspace,
		CreatedAt:   now,
	}

	if err := s.CapabilityKeys.Create(r.Context(), key); err != nil {
		log.Error().Err(err).Str("workspaceId", key.WorkspaceID).Msg("bootstrap: failed to persist capability key")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to create workspace")
		return
	}

	log.Info().Str("workspaceId", key.WorkspaceID).Str("prefix", key.Prefix).Msg("bootstrap: workspace created")

	writeJSON(w, http.StatusCreated, bootstrapResponse{
		OK:          true,
		WorkspaceID: key.WorkspaceID,
		WriteURL:    "/w/" + plaintext,
	})
}
