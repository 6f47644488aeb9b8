package execution

import (
	"context"

	"github.com/google/uuid"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// openPrompt issues a fresh prompt for the current step. Resubmission
// prompts carry the previous input so it can be edited.
func (m *Machine) openPrompt(ctx context.Context, resubmit bool) {
	if !m.running || m.index < 0 || m.index >= len(m.sequence) {
		m.prompt = nil
		return
	}
	node := m.sequence[m.index]
	p := &types.Prompt{
		ID:       uuid.New().String(),
		Index:    m.index,
		NodeID:   node.ID,
		Agent:    node.Agent,
		Resubmit: resubmit,
	}
	if resubmit {
		p.LastInput = m.results[m.index].Input
	}
	m.prompt = p

	cp := *p
	m.emit(ctx, types.EventTypePromptOpened, node.ID, &cp)
}

// checkPrompt rejects answers addressed to a prompt that is no longer open.
// An empty id addresses whichever prompt is open.
func (m *Machine) checkPrompt(id string) error {
	if m.prompt == nil {
		return ErrNotAwaitingInput
	}
	if id != "" && id != m.prompt.ID {
		return ErrStalePrompt
	}
	return nil
}

// Prompt returns the open prompt, if any.
func (m *Machine) Prompt() (*types.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompt == nil {
		return nil, false
	}
	p := *m.prompt
	return &p, true
}

// CancelPrompt dismisses the open prompt, which stops the run.
func (m *Machine) CancelPrompt(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	if err := m.checkPrompt(id); err != nil {
		return err
	}
	m.stopLocked(ctx)
	return nil
}
