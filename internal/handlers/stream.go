package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

const (
	keepaliveInterval = 30 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// EventsSSE provides Server-Sent Events for realtime updates
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	eventChan := h.bus.Subscribe()
	defer h.bus.Unsubscribe(eventChan)

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warn("Skipping unencodable event", "type", event.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is the envelope sent over the WebSocket stream.
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventsWS streams bus events and leaderboard updates over a WebSocket.
// Clients never send anything meaningful; reads only detect disconnects.
func (h *APIHandlers) EventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(events)

	var updates chan []models.LeaderboardEntry
	if h.board != nil {
		updates = h.board.Updates()
		defer h.board.StopUpdates(updates)
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("WebSocket write failed", "error", err)
			return false
		}
		return true
	}

	if !send(wsMessage{Type: "connected"}) {
		return
	}

	ping := time.NewTicker(keepaliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			logger.Debug("WebSocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !send(wsMessage{Type: ev.Type, Payload: ev.Payload}) {
				return
			}
		case ranked, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if !send(wsMessage{Type: "leaderboard", Payload: ranked}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
