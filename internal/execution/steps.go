package execution

import (
	"context"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// Continue accepts the reviewed output of the current step and moves on,
// completing the run after the last step.
func (m *Machine) Continue(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	if !m.reviewing {
		return ErrNotReviewing
	}
	m.reviewing = false
	m.advance(ctx, "continue")
	return nil
}

// Modify reopens the current step for new input. The previous input and
// output are kept so the prompt can offer them for editing. A step still
// processing is cancelled.
func (m *Machine) Modify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	m.cancelPending()
	m.gen++

	idx := m.index
	m.reviewing = false
	m.results[idx].Status = types.NodeStatusWaiting
	m.results[idx].Error = ""

	m.emit(ctx, types.EventTypeNodeStatus, m.sequence[idx].ID, types.NodeStatusEvent{
		Index:  idx,
		Status: types.NodeStatusWaiting,
	})
	m.openPrompt(ctx, true)
	return nil
}

// GoBack returns to the previous step, clearing both the step being left
// and the step being returned to. It is a no-op on the first step.
func (m *Machine) GoBack(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	if m.index <= 0 {
		return nil
	}
	m.cancelPending()
	m.gen++

	from := m.index
	m.index--
	m.reviewing = false
	for _, i := range []int{from, m.index} {
		m.results[i].Input = ""
		m.results[i].Output = ""
		m.results[i].Error = ""
		m.results[i].Status = types.NodeStatusWaiting
	}

	m.emit(ctx, types.EventTypeStepChanged, m.sequence[m.index].ID, types.StepChangedEvent{
		From:   from,
		To:     m.index,
		Reason: "back",
	})
	m.openPrompt(ctx, false)
	return nil
}
