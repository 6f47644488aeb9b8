package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/pkg/types"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
}

// originAllowed accepts requests without an Origin header and origins listed
// in CORS_ORIGINS.
func (h *Handlers) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS handles GET /api/v1/sessions/{id}/ws. It streams the same events as
// StreamEvents, one JSON object per text message.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "session_id", s.ID, "error", err)
		return
	}
	defer conn.Close()

	gauge := metrics.StreamsActive.WithLabelValues("ws")
	gauge.Inc()
	defer gauge.Dec()

	sub, cleanup := s.Subscribe()
	defer cleanup()

	send := func(evt *types.Event) error {
		data, err := json.Marshal(evt)
		if err != nil {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	lastEventID := resumeID(r)
	cursor := newEventCursor(lastEventID)

	if err := send(helloEvent(s)); err != nil {
		return
	}
	for _, evt := range s.EventsSince(lastEventID) {
		if !cursor.fresh(evt) {
			continue
		}
		if err := send(evt); err != nil {
			h.logger.Debug("ws write recent event failed", "session_id", s.ID, "error", err)
			return
		}
	}

	// Reader goroutine - handles pongs and close messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			s.Touch()
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case evt, ok := <-sub:
			if !ok {
				_ = send(streamEndEvent(s))
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !cursor.fresh(evt) {
				continue
			}
			if err := send(evt); err != nil {
				h.logger.Debug("ws write event failed", slog.String("session_id", s.ID), slog.Any("error", err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
