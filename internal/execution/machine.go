// Package execution runs a pipeline one agent at a time, pausing before each
// step for human input.
//
// A Machine owns the run state for a single editor session: the derived
// execution sequence, one result per step, the current index, and the open
// input prompt. All transitions are serialized under one mutex; the simulated
// processing delay is the only asynchronous edge and is guarded by a
// generation counter so a callback scheduled before Stop, GoBack or Modify
// can never mutate a later run.
package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/internal/sequencer"
	"github.com/flexinfer/agentmarket/internal/tracing"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// Notifier receives run events. Implementations must not call back into the
// Machine; events are delivered while the machine lock is held so that their
// order matches the order of transitions.
type Notifier interface {
	Notify(ctx context.Context, input *types.EventInput)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, input *types.EventInput)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, input *types.EventInput) { f(ctx, input) }

// AgentLookup resolves full agent metadata for the current step.
type AgentLookup interface {
	Get(ctx context.Context, id string) (*types.Agent, error)
}

// Config holds machine configuration.
type Config struct {
	// ProcessingDelay is how long a step stays in processing (0 = default).
	ProcessingDelay time.Duration

	// ReviewSteps pauses after each completed step until Continue, Modify
	// or GoBack is called. When false the run advances on its own.
	ReviewSteps bool
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		ProcessingDelay: DefaultProcessingDelay,
	}
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithProcessor sets the step processor.
func WithProcessor(p Processor) Option {
	return func(m *Machine) { m.processor = p }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithAgents sets the agent metadata lookup used by CurrentAgent.
func WithAgents(a AgentLookup) Option {
	return func(m *Machine) { m.agents = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Submission is the answer to an open prompt.
type Submission struct {
	// PromptID, when set, must match the open prompt.
	PromptID string
	Text     string
	// Files are accepted and counted but do not affect processing.
	Files []*types.ArtifactRef
}

// pendingStep is a scheduled completion for one step.
type pendingStep struct {
	timer     Timer
	index     int
	gen       uint64
	startedAt time.Time
}

// Machine is the execution state machine for one session.
type Machine struct {
	mu sync.Mutex

	delay     time.Duration
	review    bool
	clock     Clock
	processor Processor
	notifier  Notifier
	agents    AgentLookup
	logger    *slog.Logger

	running   bool
	index     int
	sequence  []types.Node
	results   []types.AgentResult
	reviewing bool
	outcome   types.RunOutcome
	prompt    *types.Prompt
	pending   *pendingStep
	gen       uint64
	startedAt time.Time
}

// New creates an idle machine.
func New(cfg *Config, opts ...Option) *Machine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	delay := cfg.ProcessingDelay
	if delay <= 0 {
		delay = DefaultProcessingDelay
	}

	m := &Machine{
		delay:     delay,
		review:    cfg.ReviewSteps,
		clock:     RealClock{},
		processor: EchoProcessor{},
		logger:    slog.Default(),
		index:     -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start derives the execution sequence from the graph and opens the first
// prompt. The graph is snapshotted; later edits do not affect the run.
func (m *Machine) Start(ctx context.Context, g *types.Graph) ([]types.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrRunActive
	}

	snapshot := g.Clone()
	if snapshot == nil {
		snapshot = &types.Graph{}
	}

	seq := sequencer.Sequence(snapshot.Nodes, snapshot.Edges)
	if len(seq) == 0 {
		m.emit(ctx, types.EventTypeWarning, "", types.WarningEvent{
			Code:    "no_sequence",
			Message: ErrNoSequence.Error(),
		})
		return nil, ErrNoSequence
	}
	if branches := sequencer.Branches(snapshot.Edges); len(branches) > 0 {
		m.logger.Debug("branching graph collapsed to first edge", "nodes", branches)
	}

	m.cancelPending()
	m.sequence = seq
	m.results = make([]types.AgentResult, len(seq))
	for i, n := range seq {
		m.results[i] = types.AgentResult{
			AgentID: n.Agent.ID,
			NodeID:  n.ID,
			Status:  types.NodeStatusWaiting,
		}
	}
	m.running = true
	m.index = 0
	m.reviewing = false
	m.outcome = types.RunOutcomeNone
	m.startedAt = time.Now()

	metrics.RunsActive.Inc()
	m.logger.Info("run started", "steps", len(seq), "sequence", sequencer.IDs(seq))
	m.emit(ctx, types.EventTypeRunStarted, "", types.RunStartedEvent{
		Steps:    len(seq),
		Sequence: sequencer.IDs(seq),
	})
	m.openPrompt(ctx, false)

	return cloneNodes(seq), nil
}

// SubmitInput records input for the current step and schedules its
// completion after the processing delay.
func (m *Machine) SubmitInput(ctx context.Context, sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	if m.index < 0 || m.index >= len(m.results) {
		return ErrNotAwaitingInput
	}
	if m.reviewing || m.results[m.index].Status != types.NodeStatusWaiting {
		return ErrNotAwaitingInput
	}
	if err := m.checkPrompt(sub.PromptID); err != nil {
		return err
	}

	idx := m.index
	promptID := ""
	if m.prompt != nil {
		promptID = m.prompt.ID
	}
	m.prompt = nil

	m.results[idx].Input = sub.Text
	m.results[idx].Output = ""
	m.results[idx].Error = ""
	m.results[idx].Status = types.NodeStatusProcessing

	nodeID := m.sequence[idx].ID
	m.emit(ctx, types.EventTypeInputSubmitted, nodeID, types.InputSubmittedEvent{
		Index:       idx,
		PromptID:    promptID,
		FileCount:   len(sub.Files),
		Attachments: sub.Files,
	})
	m.emit(ctx, types.EventTypeNodeStatus, nodeID, types.NodeStatusEvent{
		Index:  idx,
		Status: types.NodeStatusProcessing,
	})

	m.gen++
	p := &pendingStep{index: idx, gen: m.gen, startedAt: time.Now()}
	p.timer = m.clock.AfterFunc(m.delay, func() { m.completeStep(p) })
	m.pending = p

	m.logger.Debug("step processing", "index", idx, "node_id", nodeID, "files", len(sub.Files))
	return nil
}

// Stop cancels the active run, if any, and discards its results. Calling
// Stop on an idle machine clears any results kept from a completed run.
func (m *Machine) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(ctx)
}

func (m *Machine) stopLocked(ctx context.Context) {
	wasRunning := m.running
	m.cancelPending()
	m.gen++

	m.running = false
	m.index = -1
	m.sequence = nil
	m.results = nil
	m.reviewing = false
	m.prompt = nil

	if !wasRunning {
		return
	}
	m.outcome = types.RunOutcomeStopped
	metrics.RunsActive.Dec()
	metrics.RunsTotal.WithLabelValues(string(types.RunOutcomeStopped)).Inc()
	metrics.RunDuration.WithLabelValues(string(types.RunOutcomeStopped)).Observe(time.Since(m.startedAt).Seconds())
	m.logger.Info("run stopped")
	m.emit(ctx, types.EventTypeRunStopped, "", nil)
}

// State returns a copy of the run state. CurrentAgent is left nil; use
// CurrentAgent to resolve full metadata.
func (m *Machine) State() types.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := types.RunState{
		IsRunning:         m.running,
		CurrentIndex:      m.index,
		ExecutionSequence: cloneNodes(m.sequence),
		Results:           append([]types.AgentResult(nil), m.results...),
		Reviewing:         m.reviewing,
		Outcome:           m.outcome,
	}
	if m.prompt != nil {
		p := *m.prompt
		st.Prompt = &p
	}
	return st
}

// IsRunning reports whether a run is active.
func (m *Machine) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CurrentAgent returns catalog metadata for the agent at the current index.
// It is nil when idle, when no catalog is attached, or when the catalog has
// no listing for the node's agent.
func (m *Machine) CurrentAgent(ctx context.Context) *types.Agent {
	m.mu.Lock()
	if !m.running || m.index < 0 || m.index >= len(m.sequence) {
		m.mu.Unlock()
		return nil
	}
	ref := m.sequence[m.index].Agent
	m.mu.Unlock()

	if m.agents == nil || ref.ID == "" {
		return nil
	}
	a, err := m.agents.Get(ctx, ref.ID)
	if err != nil {
		m.logger.Debug("agent metadata unavailable", "agent_id", ref.ID, "error", err)
		return nil
	}
	return a
}

// completeStep runs when a pending step's delay elapses.
func (m *Machine) completeStep(p *pendingStep) {
	ctx := context.Background()

	m.mu.Lock()
	if !m.isCurrent(p) {
		m.mu.Unlock()
		return
	}
	agent := m.sequence[p.index].Agent
	input := m.results[p.index].Input
	m.mu.Unlock()

	spanCtx, span := tracing.StartSpan(ctx, "execution.step",
		attribute.Int("step.index", p.index),
		attribute.String("agent.id", agent.ID),
	)
	output, err := m.processor.Process(spanCtx, agent, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrent(p) {
		return
	}
	m.pending = nil

	idx := p.index
	nodeID := m.sequence[idx].ID
	elapsed := time.Since(p.startedAt).Seconds()

	if err != nil {
		m.results[idx].Status = types.NodeStatusError
		m.results[idx].Error = err.Error()
		metrics.StepsTotal.WithLabelValues(string(types.NodeStatusError)).Inc()
		metrics.StepDuration.WithLabelValues(string(types.NodeStatusError)).Observe(elapsed)
		m.logger.Warn("step failed", "index", idx, "node_id", nodeID, "error", err)
		m.emit(ctx, types.EventTypeNodeStatus, nodeID, types.NodeStatusEvent{
			Index:  idx,
			Status: types.NodeStatusError,
			Error:  err.Error(),
		})
		return
	}

	m.results[idx].Output = output
	m.results[idx].Status = types.NodeStatusCompleted
	metrics.StepsTotal.WithLabelValues(string(types.NodeStatusCompleted)).Inc()
	metrics.StepDuration.WithLabelValues(string(types.NodeStatusCompleted)).Observe(elapsed)
	m.emit(ctx, types.EventTypeNodeStatus, nodeID, types.NodeStatusEvent{
		Index:  idx,
		Status: types.NodeStatusCompleted,
		Output: output,
	})

	if m.review {
		m.reviewing = true
		return
	}
	m.advance(ctx, "completed")
}

// isCurrent reports whether p is still the scheduled step of the active run.
func (m *Machine) isCurrent(p *pendingStep) bool {
	return m.running && m.pending == p && p.gen == m.gen && p.index == m.index
}

// advance moves to the next step or completes the run after the last one.
func (m *Machine) advance(ctx context.Context, reason string) {
	if m.index >= len(m.sequence)-1 {
		m.finish(ctx)
		return
	}
	from := m.index
	m.index++
	m.emit(ctx, types.EventTypeStepChanged, m.sequence[m.index].ID, types.StepChangedEvent{
		From:   from,
		To:     m.index,
		Reason: reason,
	})
	m.openPrompt(ctx, false)
}

// finish ends a run naturally. Sequence and results stay readable until the
// next Start or Stop.
func (m *Machine) finish(ctx context.Context) {
	m.running = false
	m.index = -1
	m.reviewing = false
	m.prompt = nil
	m.outcome = types.RunOutcomeCompleted

	metrics.RunsActive.Dec()
	metrics.RunsTotal.WithLabelValues(string(types.RunOutcomeCompleted)).Inc()
	metrics.RunDuration.WithLabelValues(string(types.RunOutcomeCompleted)).Observe(time.Since(m.startedAt).Seconds())
	m.logger.Info("run completed", "steps", len(m.results))
	m.emit(ctx, types.EventTypeRunCompleted, "", nil)
}

func (m *Machine) cancelPending() {
	if m.pending != nil {
		m.pending.timer.Stop()
		m.pending = nil
	}
}

func (m *Machine) emit(ctx context.Context, typ types.EventType, nodeID string, data interface{}) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, &types.EventInput{Type: typ, NodeID: nodeID, Data: data})
}

func cloneNodes(nodes []types.Node) []types.Node {
	if nodes == nil {
		return nil
	}
	return append([]types.Node(nil), nodes...)
}
