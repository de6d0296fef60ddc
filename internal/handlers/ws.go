package handlers

import (
	"net/http"

	"parking/internal/middleware"
	"parking/internal/websocket"
)

// WSBalances streams balance and booking updates. Browsers pass the token as
// a query parameter because they cannot set headers on upgrade requests.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.hub, userID, h.logger)
}
