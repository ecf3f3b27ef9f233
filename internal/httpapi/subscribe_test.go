package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albri/mdplane-sub004/internal/capability"
	"github.com/albri/mdplane-sub004/internal/domain"
	"github.com/albri/mdplane-sub004/internal/wstoken"
)

func subscribeTestRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Route("/{tier}/{key}", func(r chi.Router) {
		r.Get("/ops/subscribe", s.Subscribe)
	})
	return r
}

func TestSubscribe_MintsTokenScopedToKeyTier(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	appendKey := writeScopedKey(t, keys, domain.PermissionAppend)
	s := &Server{
		CapabilityKeys: keys,
		WSTokens:       wstoken.NewService([]byte("test-secret")),
	}

	req := httptest.NewRequest(http.MethodGet, "/a/"+appendKey+"/ops/subscribe", nil)
	rec := httptest.NewRecorder()
	subscribeTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK   bool              `json:"ok"`
		Data subscribeResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Data.KeyTier != "append" {
		t.Fatalf("expected keyTier append, got %q", resp.Data.KeyTier)
	}
	if resp.Data.Token == "" {
		t.Fatal("expected a non-empty subscription token")
	}

	now := time.Now().UTC()
	payload, verr := s.WSTokens.Verify(resp.Data.Token, now)
	if verr != nil {
		t.Fatalf("expected minted token to verify, got %v", verr)
	}
	if payload.WorkspaceID != "ws1" {
		t.Errorf("expected workspaceId ws1, got %q", payload.WorkspaceID)
	}
	if payload.KeyTier != wstoken.TierAppend {
		t.Errorf("expected payload keyTier append, got %q", payload.KeyTier)
	}

	wantEvents := wstoken.EventsForTier(wstoken.TierAppend)
	if len(resp.Data.Events) != len(wantEvents) {
		t.Errorf("expected %d events for append tier, got %d", len(wantEvents), len(resp.Data.Events))
	}
}

func TestSubscribe_UnknownKeyIsNotFound(t *testing.T) {
	keys := newFakeCapabilityKeyStore()
	s := &Server{CapabilityKeys: keys, WSTokens: wstoken.NewService([]byte("test-secret"))}

	plaintext, _ := capability.GenerateKey(32)
	req := httptest.NewRequest(http.MethodGet, "/r/"+plaintext+"/ops/subscribe", nil)
	rec := httptest.NewRecorder()
	subscribeTestRouter(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
