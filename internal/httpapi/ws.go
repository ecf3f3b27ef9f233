package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/observability"
	"github.com/albri/mdplane-sub004/internal/webhook"
	"github.com/albri/mdplane-sub004/internal/wstoken"
)

// ServeWS handles GET /ws (§4.G): verifies and single-use-consumes the
// WS-subscription token before upgrading, so an invalid, expired or
// revoked token never reaches the WebSocket handshake. Events matching
// the token's tier and scope are forwarded as JSON text frames until the
// connection closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIError(w, http.StatusUnauthorized, string(wstoken.CodeInvalid), "missing token")
		return
	}

	now := time.Now().UTC()
	payload, verr := s.WSTokens.Verify(token, now)
	if verr != nil {
		writeAPIError(w, verr.Status, string(verr.Code), "subscription token rejected")
		return
	}

	if verr := s.WSTokens.Consume(payload.Nonce, now.Add(wstoken.TokenTTL)); verr != nil {
		writeAPIError(w, verr.Status, string(verr.Code), "subscription token already used")
		return
	}

	// The token only proves the key was valid at subscribe time; re-check
	// the key itself so a key revoked afterward (§4.G) is rejected with
	// the same 410 a direct capability-URL request would get, before the
	// handshake ever upgrades.
	key, err := s.CapabilityKeys.FindByHash(r.Context(), payload.KeyHash)
	if err != nil {
		log.Error().Err(err).Msg("ws: capability lookup failed")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "lookup failed")
		return
	}
	decision := capability.Evaluate(key, tierLetter(payload.KeyTier), domain.PermissionRead, payload.Scope, now)
	if !decision.Ok {
		writeAPIError(w, decision.Status, string(decision.Code), decision.Message)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("ws: accept failed")
		return
	}

	observability.WSActiveSubscriptions.Inc()
	defer observability.WSActiveSubscriptions.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	allowed := wstoken.EventsForTier(payload.KeyTier)

	unsubscribe := s.EventBus.Subscribe(func(e domain.Event) {
		if e.WorkspaceID != payload.WorkspaceID {
			return
		}
		if !webhook.SubscriptionMatches(allowed, e.Name) {
			return
		}
		path, _ := e.Data["path"].(string)
		if payload.Scope != "" && !webhook.ScopeMatches(domain.ScopeFolder, payload.Scope, true, path) {
			return
		}

		body, err := json.Marshal(e)
		if err != nil {
			return
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
		defer writeCancel()
		if err := conn.Write(writeCtx, websocket.MessageText, body); err != nil {
			return
		}
	})
	defer unsubscribe()

	// Block on reads: the client sends no application messages, so this
	// returns only when the peer closes the connection or the context is
	// cancelled (§4.G close codes are surfaced via conn.Close, not here).
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// tierLetter maps a WS token's tier back to the single-letter capability
// tier capability.Evaluate expects.
func tierLetter(t wstoken.Tier) string {
	switch t {
	case wstoken.TierWrite:
		return "w"
	case wstoken.TierAppend:
		return "a"
	default:
		return "r"
	}
}
