package ingest

import (
	"sort"
	"strings"
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

const (
	previewLimit          = 2000
	reasoningPreviewLimit = 1000
	flushBoundary         = 500

	placeholderUserContent = "no user message captured"
)

// TurnState is the in-flight mutable state for one active turn. It is owned by
// a single session and mutated only under that session's lock.
type TurnState struct {
	ID        string
	SessionID string
	Sequence  int

	UserContent string
	Assistant   strings.Builder
	flushedLen  int

	ReasoningCount   int
	PendingReasoning []string

	ToolCallCount       int
	ToolNames           []string
	LastToolCallID      string
	LastToolCallHasFile bool

	FilesTouched map[string]int

	InputTokens  int
	OutputTokens int

	ControlStartedAt time.Time
	ControlEndedAt   time.Time

	Finalized bool
	CreatedAt time.Time
}

func newTurnState(sessionID, userContent string, sequence int, now time.Time) *TurnState {
	return &TurnState{
		ID:           core.NewID(),
		SessionID:    sessionID,
		Sequence:     sequence,
		UserContent:  userContent,
		FilesTouched: map[string]int{},
		CreatedAt:    now,
	}
}

// filesList returns the touched file paths in deterministic order.
func (t *TurnState) filesList() []string {
	if len(t.FilesTouched) == 0 {
		return nil
	}
	files := make([]string, 0, len(t.FilesTouched))
	for f := range t.FilesTouched {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// snapshot freezes the state into the graph representation of a finalized turn.
func (t *TurnState) snapshot(now time.Time) *core.Turn {
	return &core.Turn{
		ID:               t.ID,
		SessionID:        t.SessionID,
		Sequence:         t.Sequence,
		UserContent:      truncate(t.UserContent, previewLimit),
		AssistantPreview: truncate(t.Assistant.String(), previewLimit),
		ToolCallCount:    t.ToolCallCount,
		InputTokens:      t.InputTokens,
		OutputTokens:     t.OutputTokens,
		FilesTouched:     t.filesList(),
		VTStart:          t.CreatedAt,
		VTEnd:            now,
		TTStart:          t.CreatedAt,
		TTEnd:            now,
		IsFinalized:      true,
		CreatedAt:        t.CreatedAt,
	}
}

func (t *TurnState) summary() core.TurnSummary {
	return core.TurnSummary{
		TurnID:           t.ID,
		SessionID:        t.SessionID,
		Sequence:         t.Sequence,
		UserPreview:      truncate(t.UserContent, flushBoundary),
		AssistantPreview: truncate(t.Assistant.String(), previewLimit),
		ToolNames:        append([]string(nil), t.ToolNames...),
		FilesTouched:     t.filesList(),
		ToolCallCount:    t.ToolCallCount,
		InputTokens:      t.InputTokens,
		OutputTokens:     t.OutputTokens,
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
