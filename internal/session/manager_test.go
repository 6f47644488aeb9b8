package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// stepClock fires callbacks only when fire is called.
type stepClock struct {
	pending []func()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func (c *stepClock) AfterFunc(_ time.Duration, f func()) execution.Timer {
	c.pending = append(c.pending, f)
	return noopTimer{}
}

func (c *stepClock) fire() {
	fns := c.pending
	c.pending = nil
	for _, f := range fns {
		f()
	}
}

func twoStep() *types.Graph {
	return &types.Graph{
		Nodes: []types.Node{
			{ID: "n1", Agent: types.AgentRef{ID: "1"}},
			{ID: "n2", Agent: types.AgentRef{ID: "2"}},
		},
		Edges: []types.Edge{{Source: "n1", Target: "n2"}},
	}
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	s, err := m.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || s.Machine == nil {
		t.Fatalf("session not initialized: %+v", s)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session")
	}

	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Delete(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestManager_List(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	a, _ := m.Create(ctx, "alice")
	_, _ = m.Create(ctx, "bob")

	if got := m.List(ctx, ""); len(got) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(got))
	}
	got := m.List(ctx, "alice")
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("owner filter failed: %+v", got)
	}
	if m.Count() != 2 {
		t.Errorf("expected count 2, got %d", m.Count())
	}
}

func TestManager_EventsFromMachine(t *testing.T) {
	clk := &stepClock{}
	m := NewManager(nil, nil, execution.WithClock(clk))
	ctx := context.Background()

	s, _ := m.Create(ctx, "")
	if _, err := s.Machine.Start(ctx, twoStep()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Machine.SubmitInput(ctx, execution.Submission{Text: "hi"}); err != nil {
		t.Fatalf("SubmitInput: %v", err)
	}
	clk.fire()

	events := s.EventsSince("")
	want := []types.EventType{
		types.EventTypeRunStarted,
		types.EventTypePromptOpened,
		types.EventTypeInputSubmitted,
		types.EventTypeNodeStatus,
		types.EventTypeNodeStatus,
		types.EventTypeStepChanged,
		types.EventTypePromptOpened,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d: got %s, want %s", i, e.Type, want[i])
		}
		if e.SessionID != s.ID {
			t.Errorf("event %d has session %q", i, e.SessionID)
		}
	}

	// Resume after the third event.
	rest := s.EventsSince(events[2].ID)
	if len(rest) != len(want)-3 {
		t.Errorf("expected %d events after resume, got %d", len(want)-3, len(rest))
	}
}

func TestSession_Subscribe(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()
	s, _ := m.Create(ctx, "")

	ch, cleanup := s.Subscribe()
	defer cleanup()

	if _, err := s.Append(&types.EventInput{Type: types.EventTypeWarning, Data: types.WarningEvent{Code: "x"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != types.EventTypeWarning {
			t.Errorf("unexpected event %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after delete")
	}

	if _, err := s.Append(&types.EventInput{Type: types.EventTypeWarning}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_EventRingBuffer(t *testing.T) {
	m := NewManager(&Config{EventMaxLen: 3}, nil)
	s, _ := m.Create(context.Background(), "")

	for i := 0; i < 5; i++ {
		if _, err := s.Append(&types.EventInput{Type: types.EventTypeWarning}); err != nil {
			t.Fatal(err)
		}
	}

	events := s.EventsSince("")
	if len(events) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(events))
	}
	if events[0].ID != "3" || events[2].ID != "5" {
		t.Errorf("expected ids 3..5, got %s..%s", events[0].ID, events[2].ID)
	}

	// An evicted id still resumes from the right place.
	if got := s.EventsSince("1"); len(got) != 3 {
		t.Errorf("expected 3 events after evicted id, got %d", len(got))
	}
	if got := s.EventsSince("4"); len(got) != 1 || got[0].ID != "5" {
		t.Errorf("expected only event 5, got %v", got)
	}
}

func TestManager_ExpireIdle(t *testing.T) {
	m := NewManager(&Config{IdleTTL: time.Minute}, nil)
	ctx := context.Background()

	stale, _ := m.Create(ctx, "")
	fresh, _ := m.Create(ctx, "")

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-2 * time.Minute)
	stale.mu.Unlock()

	if n := m.ExpireIdle(ctx, time.Now()); n != 1 {
		t.Errorf("expected 1 expired session, got %d", n)
	}
	if _, err := m.Get(ctx, stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("stale session should be gone")
	}
	if _, err := m.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh session should remain: %v", err)
	}
}

func TestManager_DeleteStopsRun(t *testing.T) {
	m := NewManager(nil, nil, execution.WithClock(&stepClock{}))
	ctx := context.Background()

	s, _ := m.Create(ctx, "")
	if _, err := s.Machine.Start(ctx, twoStep()); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if s.Machine.IsRunning() {
		t.Error("deleting a session should stop its run")
	}
}
