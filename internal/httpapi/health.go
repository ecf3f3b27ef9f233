package httpapi

import "net/http"

// Health handles GET /health: a liveness probe that never touches the
// database, so it stays reachable even if the pool is exhausted.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "serving"})
}
