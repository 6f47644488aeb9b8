package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/internal/session"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
const heartbeatInterval = 15 * time.Second

// eventCursor drops events already delivered. A subscription opened before
// the replay may repeat buffered events.
type eventCursor struct {
	last int64
}

func newEventCursor(lastEventID string) *eventCursor {
	n, _ := strconv.ParseInt(lastEventID, 10, 64)
	return &eventCursor{last: n}
}

func (c *eventCursor) fresh(evt *types.Event) bool {
	seq, err := strconv.ParseInt(evt.ID, 10, 64)
	if err != nil {
		return true
	}
	if seq <= c.last {
		return false
	}
	c.last = seq
	return true
}

// resumeID reads the resume position from the Last-Event-ID header, falling
// back to the last_event_id query parameter for clients that cannot set it.
func resumeID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}

func helloEvent(s *session.Session) *types.Event {
	return &types.Event{
		ID:        "0",
		SessionID: s.ID,
		Type:      types.EventTypeHello,
		Timestamp: time.Now().UTC(),
	}
}

func streamEndEvent(s *session.Session) *types.Event {
	return &types.Event{
		ID:        "final",
		SessionID: s.ID,
		Type:      types.EventTypeStreamEnd,
		Timestamp: time.Now().UTC(),
	}
}

// StreamEvents handles GET /api/v1/sessions/{id}/events
// It implements Server-Sent Events (SSE) for streaming session events.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	requestID := GetRequestID(r.Context(), r)
	startTime := time.Now()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	gauge := metrics.StreamsActive.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	h.logger.Info("SSE connection opened",
		slog.String("session_id", s.ID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribe before replaying so nothing falls in between.
	eventCh, cleanup := s.Subscribe()
	defer cleanup()

	lastEventID := resumeID(r)
	cursor := newEventCursor(lastEventID)

	h.writeSSE(w, flusher, helloEvent(s))
	for _, evt := range s.EventsSince(lastEventID) {
		if cursor.fresh(evt) {
			h.writeSSE(w, flusher, evt)
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	closed := func(reason string) {
		h.logger.Info("SSE connection closed",
			slog.String("session_id", s.ID),
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(startTime)),
			slog.String("reason", reason),
		)
	}

	for {
		select {
		case <-r.Context().Done():
			closed("client_disconnect")
			return

		case evt, ok := <-eventCh:
			if !ok {
				h.writeSSE(w, flusher, streamEndEvent(s))
				closed("session_closed")
				return
			}
			if cursor.fresh(evt) {
				h.writeSSE(w, flusher, evt)
			}

		case <-heartbeat.C:
			s.Touch()
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// writeSSE writes an event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, evt *types.Event) {
	if evt == nil {
		return
	}
	if _, err := w.Write(evt.ToSSE()); err != nil {
		h.logger.Debug("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Debug("failed to write SSE comment", "error", err)
		return
	}
	flusher.Flush()
}
