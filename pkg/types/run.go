// Package types provides shared types for the marketplace service.
package types

// NodeStatus is the per-step state within a run.
type NodeStatus string

const (
	NodeStatusWaiting    NodeStatus = "waiting"
	NodeStatusProcessing NodeStatus = "processing"
	NodeStatusCompleted  NodeStatus = "completed"
	NodeStatusError      NodeStatus = "error"
)

// AgentResult is the record kept for one entry of the execution sequence.
type AgentResult struct {
	AgentID string     `json:"agent_id"`
	NodeID  string     `json:"node_id"`
	Input   string     `json:"input"`
	Output  string     `json:"output"`
	Status  NodeStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
}

// RunOutcome describes how the last run ended.
type RunOutcome string

const (
	RunOutcomeNone      RunOutcome = ""
	RunOutcomeCompleted RunOutcome = "completed"
	RunOutcomeStopped   RunOutcome = "stopped"
)

// RunState is the read model the presentation layer renders.
type RunState struct {
	IsRunning         bool          `json:"is_running"`
	CurrentIndex      int           `json:"current_index"`
	ExecutionSequence []Node        `json:"execution_sequence"`
	Results           []AgentResult `json:"results"`
	Reviewing         bool          `json:"reviewing"`
	Outcome           RunOutcome    `json:"outcome,omitempty"`
	CurrentAgent      *Agent        `json:"current_agent,omitempty"`
	Prompt            *Prompt       `json:"prompt,omitempty"`
}

// Prompt is the open request for human input on the active step.
type Prompt struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	NodeID    string   `json:"node_id"`
	Agent     AgentRef `json:"agent"`
	Resubmit  bool     `json:"resubmit,omitempty"`
	LastInput string   `json:"last_input,omitempty"`
}
