// Package handlers exposes the game over HTTP: a JSON API, an SSE stream, a
// WebSocket stream and the join QR code.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Billy-Davies-2/pricing-game/internal/analytics"
	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/game"
	"github.com/Billy-Davies-2/pricing-game/internal/identity"
	"github.com/Billy-Davies-2/pricing-game/internal/leaderboard"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

const (
	teamKeyCookie  = "team_key"
	teamNameCookie = "team_name"
	maxBodyBytes   = 1 << 20
)

// APIHandlers contains all API handler methods
type APIHandlers struct {
	svc       *game.Service
	bus       pubsub.Bus
	board     *leaderboard.Aggregator
	sink      analytics.Sink
	publicURL string
}

// NewAPIHandlers creates a new API handlers instance. board and sink may be
// nil; the leaderboard then reads the store directly and analytics is off.
func NewAPIHandlers(svc *game.Service, bus pubsub.Bus, board *leaderboard.Aggregator, sink analytics.Sink, publicURL string) *APIHandlers {
	return &APIHandlers{
		svc:       svc,
		bus:       bus,
		board:     board,
		sink:      sink,
		publicURL: publicURL,
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotReady:
		return http.StatusPreconditionFailed
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, statusFor(kind), map[string]string{
		"error": apperr.Message(err),
		"kind":  string(kind),
	})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("invalid request body: %v", err)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return v
}

func setTeamCookies(w http.ResponseWriter, id identity.Identity) {
	expires := time.Now().Add(12 * time.Hour)
	for name, value := range map[string]string{teamKeyCookie: id.Key, teamNameCookie: id.Name} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    url.QueryEscape(value),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Expires:  expires,
		})
	}
}

// requestIdentity prefers explicit values and falls back to the join cookies.
func requestIdentity(r *http.Request, key, name string) identity.Identity {
	if key == "" {
		key = cookieValue(r, teamKeyCookie)
	}
	if name == "" {
		name = cookieValue(r, teamNameCookie)
	}
	return identity.Identity{Key: key, Name: name}
}

// Join registers a new team
func (h *APIHandlers) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	team, err := h.svc.Join(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	setTeamCookies(w, identity.Identity{Key: team.Key, Name: team.Name})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":      team.Key,
		"name":     team.Name,
		"joinedAt": team.JoinedAt,
	})
}

// SubmitChoice plays the caller's next round
func (h *APIHandlers) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key    string `json:"key"`
		Name   string `json:"name"`
		Option string `json:"option"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.SubmitChoice(r.Context(), requestIdentity(r, req.Key, req.Name), req.Option)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetTeam returns the caller's progress so a reloaded page can resume
func (h *APIHandlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	progress, err := h.svc.Resume(r.Context(), requestIdentity(r, q.Get("key"), q.Get("name")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// GetState returns the whole session read model
func (h *APIHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	logger.Debug("Getting session state")
	state, err := h.svc.State(r.Context())
	if err != nil {
		logger.Error("Failed to get session state", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetLeaderboard returns the current ranking
func (h *APIHandlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.board != nil {
		writeJSON(w, http.StatusOK, h.board.Current())
		return
	}
	ranked, err := h.svc.Leaderboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// SaveConfiguration stores the instructor's setup
func (h *APIHandlers) SaveConfiguration(w http.ResponseWriter, r *http.Request) {
	var in game.ConfigInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.svc.SaveConfiguration(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// StartGame opens play
func (h *APIHandlers) StartGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.StartGame(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ResetSession clears all teams and returns to idle
func (h *APIHandlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.ResetSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// OptionStats returns per-option aggregates from the analytics sink
func (h *APIHandlers) OptionStats(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		writeError(w, apperr.NotReady("analytics is not configured"))
		return
	}
	stats, err := h.sink.OptionStats(r.Context())
	if err != nil {
		logger.Error("Failed to query analytics", "error", err)
		writeError(w, apperr.Transport(err, "analytics query failed"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
