package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/ssrf"
)

type createWebhookRequest struct {
	URL       string   `json:"url" validate:"required,url"`
	Events    []string `json:"events" validate:"required,min=1"`
	ScopeType string   `json:"scopeType" validate:"required,oneof=workspace folder file"`
	ScopePath string   `json:"scopePath"`
	Recursive bool     `json:"recursive"`
	Secret    string   `json:"secret" validate:"required,min=16"`
}

type webhookResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	ScopeType string   `json:"scopeType"`
	ScopePath string   `json:"scopePath,omitempty"`
	Recursive bool     `json:"recursive"`
	CreatedAt string   `json:"createdAt"`
}

// CreateWebhook handles POST .../webhooks (§4.E webhook_create, §4.I,
// §4.J): the key must carry write permission over the workspace, and the
// target URL must pass the synchronous SSRF gate before the subscription
// is persisted. The signing secret is taken from the caller and never
// echoed back.
func (s *Server) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	key := s.requireCapability(w, r, domain.PermissionWrite)
	if key == nil {
		return
	}

	var req createWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result := ssrf.IsUrlBlocked(req.URL, s.SSRFConfig)
	if !result.Safe {
		writeAPIError(w, http.StatusBadRequest, "URL_BLOCKED", result.Reason)
		return
	}

	scopeType := domain.ScopeType(req.ScopeType)
	now := time.Now().UTC()
	wh := domain.Webhook{
		ID:          uuid.NewString(),
		WorkspaceID: key.WorkspaceID,
		URL:         req.URL,
		Events:      req.Events,
		ScopeType:   scopeType,
		ScopePath:   req.ScopePath,
		Recursive:   req.Recursive,
		SecretHash:  req.Secret,
		CreatedAt:   now,
	}

	if err := s.Webhooks.Create(r.Context(), wh); err != nil {
		log.Error().Err(err).Str("workspaceId", key.WorkspaceID).Msg("webhooks: failed to create")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to create webhook")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":   true,
		"data": toWebhookResponse(wh),
	})
}

// ListWebhooks handles GET .../webhooks for the workspace the key resolves
// to. Read-tier keys may list but never see the signing secret.
func (s *Server) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	key := s.requireCapability(w, r, domain.PermissionRead)
	if key == nil {
		return
	}

	webhooks, err := s.Webhooks.ActiveForWorkspace(r.Context(), key.WorkspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspaceId", key.WorkspaceID).Msg("webhooks: failed to list")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to list webhooks")
		return
	}

	out := make([]webhookResponse, 0, len(webhooks))
	for _, wh := range webhooks {
		out = append(out, toWebhookResponse(wh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": out})
}

// DeleteWebhook handles DELETE .../webhooks/{id}: a write-tier capability
// key soft-deletes the subscription so the delivery audit log for it
// remains intact.
func (s *Server) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	key := s.requireCapability(w, r, domain.PermissionWrite)
	if key == nil {
		return
	}

	id := chiURLParam(r, "webhookId")
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing webhook id")
		return
	}

	if err := s.Webhooks.DeleteSoft(r.Context(), id, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("webhookId", id).Msg("webhooks: failed to soft-delete")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "failed to delete webhook")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func toWebhookResponse(wh domain.Webhook) webhookResponse {
	return webhookResponse{
		ID:        wh.ID,
		URL:       wh.URL,
		Events:    wh.Events,
		ScopeType: string(wh.ScopeType),
		ScopePath: wh.ScopePath,
		Recursive: wh.Recursive,
		CreatedAt: wh.CreatedAt.Format(time.RFC3339),
	}
}

// requireCapability resolves and evaluates the capability key embedded in
// the request path against requiredPermission, writing the uniform §4.C
// rejection response and returning nil if the request should not proceed.
func (s *Server) requireCapability(w http.ResponseWriter, r *http.Request, requiredPermission domain.Permission) *domain.CapabilityKey {
	tier := chiURLParam(r, "tier")
	plaintext := chiURLParam(r, "key")
	resourcePath := chiURLParam(r, "*")

	if !capability.IsFormatValid(plaintext) {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "Key not found")
		return nil
	}

	hash := capability.HashKey(plaintext)
	key, err := s.CapabilityKeys.FindByHash(r.Context(), hash)
	if err != nil {
		log.Error().Err(err).Msg("requireCapability: store lookup failed")
		writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "lookup failed")
		return nil
	}

	decision := capability.Evaluate(key, tier, requiredPermission, resourcePath, time.Now().UTC())
	if !decision.Ok {
		writeAPIError(w, decision.Status, string(decision.Code), decision.Message)
		return nil
	}

	return key
}
