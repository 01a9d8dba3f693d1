package core

import "time"

type EventType string

const (
	EventContent  EventType = "content"
	EventThought  EventType = "thought"
	EventToolCall EventType = "tool_call"
	EventDiff     EventType = "diff"
	EventUsage    EventType = "usage"
	EventControl  EventType = "control"
)

// Control signals carried in event metadata.
const (
	SignalTurnStart = "turn_start"
	SignalTurnEnd   = "turn_end"
	SignalPause     = "pause"
	SignalResume    = "resume"
)

// ToolCallPayload carries a (possibly streaming) tool invocation. Arguments
// arrive as deltas and may never form a complete JSON document.
type ToolCallPayload struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	ArgumentsDelta string `json:"arguments_delta"`
	Index          int    `json:"index"`
}

type DiffPayload struct {
	File string `json:"file"`
	Hunk string `json:"hunk"`
}

type UsagePayload struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Event is one normalized agent-session event. After normalization it is
// guaranteed to carry a non-empty ID and Timestamp, and nested payloads are
// zero-valued rather than semantically "missing".
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	Thought   string          `json:"thought,omitempty"`
	ToolCall  ToolCallPayload `json:"tool_call,omitempty"`
	Diff      DiffPayload     `json:"diff,omitempty"`
	Usage     UsagePayload    `json:"usage,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Signal returns the control signal carried in metadata, if any.
func (e *Event) Signal() string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata["signal"].(string)
	return s
}
