// Package session manages editor sessions, each owning one execution
// machine and the event stream it produces.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// Common errors returned by the session manager.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// Config holds session manager configuration.
type Config struct {
	// Maximum number of events kept per session (ring buffer)
	EventMaxLen int

	// IdleTTL expires sessions without activity (0 = never)
	IdleTTL time.Duration

	// Machine configures each session's execution machine.
	Machine *execution.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EventMaxLen: 1000,
		IdleTTL:     30 * time.Minute,
		Machine:     execution.DefaultConfig(),
	}
}

// Session is one editor's execution context.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	Machine   *execution.Machine

	events *eventLog
	logger *slog.Logger

	mu         sync.Mutex
	lastActive time.Time
}

// Info is the listing view of a session.
type Info struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	IsRunning  bool      `json:"is_running"`
	Events     int       `json:"events"`
}

// Notify implements execution.Notifier by appending to the event log.
func (s *Session) Notify(_ context.Context, input *types.EventInput) {
	if _, err := s.events.append(input); err != nil {
		s.logger.Warn("dropping event", slog.String("type", string(input.Type)), slog.Any("error", err))
		return
	}
	metrics.EventsTotal.WithLabelValues(string(input.Type)).Inc()
}

// Append records an event that did not originate in the machine.
func (s *Session) Append(input *types.EventInput) (*types.Event, error) {
	evt, err := s.events.append(input)
	if err == nil {
		metrics.EventsTotal.WithLabelValues(string(input.Type)).Inc()
	}
	return evt, err
}

// EventsSince returns buffered events after lastEventID (exclusive).
func (s *Session) EventsSince(lastEventID string) []*types.Event {
	return s.events.since(lastEventID)
}

// Subscribe returns a channel of new events. The cleanup function must be
// called when done. The channel is closed when the session is deleted.
func (s *Session) Subscribe() (<-chan *types.Event, func()) {
	return s.events.subscribe()
}

// Touch marks the session as active.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Info summarizes the session.
func (s *Session) Info() Info {
	return Info{
		ID:         s.ID,
		Owner:      s.Owner,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		IsRunning:  s.Machine.IsRunning(),
		Events:     s.events.len(),
	}
}

func (s *Session) close(ctx context.Context) {
	s.Machine.Stop(ctx)
	s.events.close()
}
