package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes the kind of event.
type EventType string

const (
	EventTypeHello          EventType = "hello"
	EventTypeStreamEnd      EventType = "stream_end"
	EventTypeRunStarted     EventType = "run_started"
	EventTypeRunCompleted   EventType = "run_completed"
	EventTypeRunStopped     EventType = "run_stopped"
	EventTypePromptOpened   EventType = "prompt_opened"
	EventTypeInputSubmitted EventType = "input_submitted"
	EventTypeNodeStatus     EventType = "node_status"
	EventTypeStepChanged    EventType = "step_changed"
	EventTypeWarning        EventType = "warning"
)

// Event represents a single entry in a session's event stream.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	NodeID    string          `json:"node_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventInput is used when appending new events.
type EventInput struct {
	Type   EventType   `json:"type"`
	NodeID string      `json:"node_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// NodeStatusEvent is the payload for node status changes.
type NodeStatusEvent struct {
	Index  int        `json:"index"`
	Status NodeStatus `json:"status"`
	Output string     `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// InputSubmittedEvent is the payload emitted when a prompt is answered.
// Attachments surface here only; they are never stored on the result.
type InputSubmittedEvent struct {
	Index       int            `json:"index"`
	PromptID    string         `json:"prompt_id"`
	FileCount   int            `json:"file_count"`
	Attachments []*ArtifactRef `json:"attachments,omitempty"`
}

// StepChangedEvent is the payload for index movements.
type StepChangedEvent struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// RunStartedEvent is the payload for a run start.
type RunStartedEvent struct {
	Steps    int      `json:"steps"`
	Sequence []string `json:"sequence"`
}

// WarningEvent carries a user-visible notification.
type WarningEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ArtifactRef points at a stored attachment.
type ArtifactRef struct {
	URI         string    `json:"uri"`
	Name        string    `json:"name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ToSSE formats the event for Server-Sent Events protocol.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e *Event) ToSSE() []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data))
}
