package httpapi

import (
	"net/http"
	"time"

	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/wstoken"
)

type subscribeResponse struct {
	WsURL     string   `json:"wsUrl"`
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expiresAt"`
	Events    []string `json:"events"`
	KeyTier   string   `json:"keyTier"`
	Scope     string   `json:"scope,omitempty"`
	Recursive bool     `json:"recursive"`
}

// Subscribe handles GET .../ops/subscribe and .../ops/folders/subscribe
// (§4.E subscribe, §4.G): it evaluates the capability key exactly like
// any other route, then mints a short-lived single-use WS token scoped
// to the key's tier and resource path.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	key := s.requireCapability(w, r, domain.PermissionRead)
	if key == nil {
		return
	}

	tier := wsTierFor(key.Permission)
	now := time.Now().UTC()

	scope := chiURLParam(r, "*")
	if scope == "" {
		scope = key.ScopePath
	}

	payload := wstoken.Payload{
		WorkspaceID: key.WorkspaceID,
		KeyTier:     tier,
		KeyHash:     key.KeyHash,
		Scope:       scope,
	}

	token, err := s.WSTokens.Sign(payload, now)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to mint subscription token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": subscribeResponse{
			WsURL:     "/ws",
			Token:     token,
			ExpiresAt: now.Add(wstoken.TokenTTL).Format(time.RFC3339),
			Events:    wstoken.EventsForTier(tier),
			KeyTier:   string(tier),
			Scope:     scope,
			Recursive: key.ScopeType == domain.ScopeFolder,
		},
	})
}

func wsTierFor(p domain.Permission) wstoken.Tier {
	switch p {
	case domain.PermissionWrite:
		return wstoken.TierWrite
	case domain.PermissionAppend:
		return wstoken.TierAppend
	default:
		return wstoken.TierRead
	}
}
