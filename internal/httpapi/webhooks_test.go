package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/ssrf"
)

func webhookTestRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Route("/{tier}/{key}", func(r chi.Router) {
		r.Post("/webhooks", s.CreateWebhook)
		r.Get("/webhooks", s.ListWebhooks)
		r.Delete("/webhooks/{webhookId}", s.DeleteWebhook)
	})
	return r
}

func writeScopedKey(t *testing.T, keys *fakeCapabilityKeyStore, perm domain.Permission) string {
	t.Helper()
	plaintext, err := capability.GenerateKey(32)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	keys.Create(nil, domain.CapabilityKey{
		ID:          "k1",
		WorkspaceID: "ws1",
		KeyHash:     capability.HashKey(plaintext),
		Permission:  perm,
		ScopeType:   domain.ScopeWorkspace,
		CreatedAt:   time.Now(),
	})
	return plaintext
}

func TestCreateWebhook_WriteKeySucceeds(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	writeKey := writeScopedKey(t, keys, domain.PermissionWrite)
	webhooks := newFakeWebhookStore()
	s := &Server{CapabilityKeys: keys, Webhooks: webhooks, SSRFConfig: ssrf.Config{AllowHTTP: true}}

	reqBody, _ := json.Marshal(createWebhookRequest{
		URL:       "http://example.com/hook",
		Events:    []string{"file.created"},
		ScopeType: "workspace",
		Secret:    "a-sixteen-byte-plus-secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/w/"+writeKey+"/webhooks", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	webhookTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if webhooks.count() != 1 {
		t.Fatalf("expected one persisted webhook, got %d", webhooks.count())
	}
}

func TestCreateWebhook_ReadKeyIsRejected(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	readKey := writeScopedKey(t, keys, domain.PermissionRead)
	webhooks := newFakeWebhookStore()
	s := &Server{CapabilityKeys: keys, Webhooks: webhooks, SSRFConfig: ssrf.Config{AllowHTTP: true}}

	reqBody, _ := json.Marshal(createWebhookRequest{
		URL: "http://example.com/hook", Events: []string{"file.created"},
		ScopeType: "workspace", Secret: "a-sixteen-byte-plus-secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/r/"+readKey+"/webhooks", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	webhookTestRouter(s).ServeHTTP(rec, req)

	// A read-tier key lacks write permission, so it must be rejected exactly
	// like a key that doesn't exist (404, never 403).
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for under-permissioned key, got %d: %s", rec.Code, rec.Body.String())
	}
	if webhooks.count() != 0 {
		t.Fatal("expected no webhook to be persisted")
	}
}

func TestCreateWebhook_SSRFBlockedURLIsRejected(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	writeKey := writeScopedKey(t, keys, domain.PermissionWrite)
	webhooks := newFakeWebhookStore()
	s := &Server{CapabilityKeys: keys, Webhooks: webhooks, SSRFConfig: ssrf.Config{}}

	reqBody, _ := json.Marshal(createWebhookRequest{
		URL: "http://169.254.169.254/hook", Events: []string{"file.created"},
		ScopeType: "workspace", Secret: "a-sixteen-byte-plus-secret",
	})
	req := httptest.NewRequest(http.MethodPost, "/w/"+writeKey+"/webhooks", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	webhookTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for SSRF-blocked target, got %d: %s", rec.Code, rec.Body.String())
	}
	if webhooks.count() != 0 {
		t.Fatal("expected no webhook to be persisted for a blocked URL")
	}
}

func TestListWebhooks_ReturnsOnlyWorkspaceWebhooks(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	readKey := writeScopedKey(t, keys, domain.PermissionRead)
	webhooks := newFakeWebhookStore()
	webhooks.Create(nil, domain.Webhook{ID: "wh1", WorkspaceID: "ws1", URL: "http://a", Events: []string{"*"}})
	webhooks.Create(nil, domain.Webhook{ID: "wh2", WorkspaceID: "other-ws", URL: "http://b", Events: []string{"*"}})

	s := &Server{CapabilityKeys: keys, Webhooks: webhooks}

	req := httptest.NewRequest(http.MethodGet, "/r/"+readKey+"/webhooks", nil)
	rec := httptest.NewRecorder()
	webhookTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK   bool              `json:"ok"`
		Data []webhookResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "wh1" {
		t.Fatalf("expected exactly the ws1 webhook, got %+v", resp.Data)
	}
}

func TestDeleteWebhook_WriteKeySoftDeletes(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	writeKey := writeScopedKey(t, keys, domain.PermissionWrite)
	webhooks := newFakeWebhookStore()
	webhooks.Create(nil, domain.Webhook{ID: "wh1", WorkspaceID: "ws1", URL: "http://a", Events: []string{"*"}})

	s := &Server{CapabilityKeys: keys, Webhooks: webhooks}

	req := httptest.NewRequest(http.MethodDelete, "/w/"+writeKey+"/webhooks/wh1", nil)
	rec := httptest.NewRecorder()
	webhookTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if webhooks.webhooks["wh1"].DeletedAt == nil {
		t.Fatal("expected webhook to be soft-deleted")
	}
}
