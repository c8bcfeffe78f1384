package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/Billy-Davies-2/pricing-game/internal/auth"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

// Routes builds the HTTP router. Instructor routes pass through
// authProvider; a nil provider leaves them open. checks back /health and
// /health/ready.
func Routes(h *APIHandlers, authProvider auth.AuthProvider, checks map[string]Checker) *httprouter.Router {
	if authProvider == nil {
		authProvider = auth.NoAuth{}
	}
	instructor := authProvider.Middleware

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		logger.Error("Handler panic", "path", r.URL.Path, "panic", v)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "kind": "transport"})
	}

	// Auth routes (public)
	mux.HandlerFunc(http.MethodGet, "/auth/login", authProvider.LoginHandler)
	mux.HandlerFunc(http.MethodGet, "/auth/callback", authProvider.CallbackHandler)
	mux.HandlerFunc(http.MethodGet, "/auth/logout", authProvider.LogoutHandler)

	// Team API
	mux.HandlerFunc(http.MethodPost, "/api/join", h.Join)
	mux.HandlerFunc(http.MethodGet, "/api/join/qr", h.JoinQR)
	mux.HandlerFunc(http.MethodPost, "/api/choice", h.SubmitChoice)
	mux.HandlerFunc(http.MethodGet, "/api/team", h.GetTeam)
	mux.HandlerFunc(http.MethodGet, "/api/state", h.GetState)
	mux.HandlerFunc(http.MethodGet, "/api/leaderboard", h.GetLeaderboard)

	// Instructor API
	mux.HandlerFunc(http.MethodPost, "/api/config", instructor(h.SaveConfiguration))
	mux.HandlerFunc(http.MethodPost, "/api/start", instructor(h.StartGame))
	mux.HandlerFunc(http.MethodPost, "/api/reset", instructor(h.ResetSession))
	mux.HandlerFunc(http.MethodGet, "/api/analytics/options", instructor(h.OptionStats))

	// Realtime
	mux.HandlerFunc(http.MethodGet, "/api/events", h.EventsSSE)
	mux.HandlerFunc(http.MethodGet, "/api/ws", h.EventsWS)

	// Health check endpoints
	mux.HandlerFunc(http.MethodGet, "/health", healthHandler(checks))
	mux.HandlerFunc(http.MethodGet, "/health/live", livenessHandler)
	mux.HandlerFunc(http.MethodGet, "/health/ready", readinessHandler(checks))

	return mux
}
