package core

import "time"

const (
	EngramName    = "Engram"
	EngramVersion = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// OpenEnd is the sentinel for an unbounded valid-time / transaction-time end.
// A closed window always has an end strictly before this instant.
var OpenEnd = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Session is the per-origin container for turns. Created on first event,
// mutated on every subsequent one, never deleted by this core.
type Session struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Turn is one user-to-assistant exchange.
type Turn struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Sequence         int       `json:"sequence_index"`
	UserContent      string    `json:"user_content"`
	AssistantPreview string    `json:"assistant_preview"`
	ToolCallCount    int       `json:"tool_call_count"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	FilesTouched     []string  `json:"files_touched,omitempty"`
	VTStart          time.Time `json:"vt_start"`
	VTEnd            time.Time `json:"vt_end"`
	TTStart          time.Time `json:"tt_start"`
	TTEnd            time.Time `json:"tt_end"`
	IsFinalized      bool      `json:"is_finalized"`
	CreatedAt        time.Time `json:"created_at"`
}

// Reasoning is an immutable thought block inside a turn.
type Reasoning struct {
	ID          string    `json:"id"`
	TurnID      string    `json:"turn_id"`
	Sequence    int       `json:"sequence_index"`
	ContentHash string    `json:"content_hash"`
	Preview     string    `json:"preview"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToolCall is one tool invocation inside a turn. FilePath and FileAction are
// set by the tool-call handler when extractable from arguments, or backfilled
// later by the first diff event naming a file (first-writer-wins).
type ToolCall struct {
	ID             string    `json:"id"`
	TurnID         string    `json:"turn_id"`
	CallID         string    `json:"call_id"`
	Name           string    `json:"name"`
	ToolType       string    `json:"tool_type"`
	ArgsPreview    string    `json:"args_preview"`
	FilePath       string    `json:"file_path,omitempty"`
	FileAction     string    `json:"file_action,omitempty"`
	Status         string    `json:"status"`
	Sequence       int       `json:"sequence_index"`
	AfterReasoning int       `json:"after_reasoning_seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// DiffHunk is a captured file change linked to the tool call that produced it.
type DiffHunk struct {
	ID         string    `json:"id"`
	ToolCallID string    `json:"tool_call_id"`
	FilePath   string    `json:"file_path"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

// TurnSummary is the payload published downstream when a turn finalizes.
type TurnSummary struct {
	TurnID           string   `json:"turn_id"`
	SessionID        string   `json:"session_id"`
	Sequence         int      `json:"sequence_index"`
	UserPreview      string   `json:"user_preview"`
	AssistantPreview string   `json:"assistant_preview"`
	ToolNames        []string `json:"tool_names,omitempty"`
	FilesTouched     []string `json:"files_touched,omitempty"`
	ToolCallCount    int      `json:"tool_call_count"`
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
}

// Message is a chat message exchanged with an AI provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
