package handlers

import "net/http"

// HealthHandler responds with service health information.
type HealthHandler struct {
	Presence PresenceCounter
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": "ok",
	}
	if h.Presence != nil {
		payload["online"] = h.Presence.Count()
	}

	respondJSON(r.Context(), w, http.StatusOK, payload)
}
