package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/internal/metrics"
)

// Manager owns the live sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   *Config
	opts     []execution.Option
	logger   *slog.Logger
}

// NewManager creates a session manager. opts are applied to every machine
// it creates, after the session's own notifier.
func NewManager(cfg *Config, logger *slog.Logger, opts ...execution.Option) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		opts:     opts,
		logger:   logger,
	}
}

// Create starts a new idle session.
func (m *Manager) Create(ctx context.Context, owner string) (*Session, error) {
	id := uuid.New().String()
	now := time.Now()
	logger := m.logger.With(slog.String("session_id", id))

	s := &Session{
		ID:         id,
		Owner:      owner,
		CreatedAt:  now.UTC(),
		events:     newEventLog(id, m.config.EventMaxLen),
		logger:     logger,
		lastActive: now,
	}

	opts := append([]execution.Option{
		execution.WithNotifier(s),
		execution.WithLogger(logger),
	}, m.opts...)
	s.Machine = execution.New(m.config.Machine, opts...)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	logger.Info("session created", slog.String("owner", owner))
	return s, nil
}

// Get returns a session and marks it active.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// List returns session summaries, newest first. An empty owner lists all.
func (m *Manager) List(ctx context.Context, owner string) []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		if owner != "" && s.Owner != owner {
			continue
		}
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete stops the session's run and ends its event streams.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.close(ctx)
	metrics.SessionsActive.Dec()
	s.logger.Info("session deleted")
	return nil
}

// ExpireIdle deletes sessions whose last activity is older than the idle
// TTL and returns how many were removed.
func (m *Manager) ExpireIdle(ctx context.Context, now time.Time) int {
	if m.config.IdleTTL <= 0 {
		return 0
	}

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.config.IdleTTL {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if err := m.Delete(ctx, id); err == nil {
			n++
		}
	}
	if n > 0 {
		m.logger.Info("expired idle sessions", slog.Int("count", n))
	}
	return n
}

// RunJanitor expires idle sessions on an interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.config.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.ExpireIdle(ctx, now)
		}
	}
}

// Close deletes every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Delete(ctx, id)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
