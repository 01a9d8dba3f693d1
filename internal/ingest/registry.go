package ingest

import (
	"context"

	"github.com/kestrelworks/engram/internal/core"
)

// Handler actions reported back to the aggregator. ActionFinalizeTurn asks the
// aggregator to run its (idempotent) finalize path after dispatch.
const (
	ActionAppended        = "appended"
	ActionPreviewFlushed  = "preview_flushed"
	ActionReasoningStored = "reasoning_stored"
	ActionToolCallStored  = "tool_call_stored"
	ActionFileBackfilled  = "file_backfilled"
	ActionFileTouched     = "file_touched"
	ActionFinalizeTurn    = "finalize_turn"
	ActionAcknowledged    = "acknowledged"
)

type Result struct {
	Handled bool
	Action  string
	NodeID  string
}

// Handler is the strategy contract: a handler declares which events it accepts
// and how it mutates turn state and the graph. Handlers are stateless values;
// all mutable state lives on the TurnState they are given.
type Handler interface {
	Name() string
	CanHandle(ev *core.Event) bool
	Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error)
}

// GraphWriter is the mutation surface handlers use. Implemented by
// graph.Writer; faked in tests.
type GraphWriter interface {
	UpsertSession(ctx context.Context, s *core.Session) error
	CreateTurn(ctx context.Context, t *core.Turn) error
	SetTurnPreview(ctx context.Context, turnID, preview string) error
	FinalizeTurn(ctx context.Context, t *core.Turn) error
	CreateReasoning(ctx context.Context, r *core.Reasoning) error
	CreateToolCall(ctx context.Context, tc *core.ToolCall) error
	LinkReasoningBatch(ctx context.Context, toolCallID string, reasoningIDs []string) error
	BackfillToolCallFile(ctx context.Context, toolCallID, path, action string) error
	CreateDiffHunk(ctx context.Context, h *core.DiffHunk) error
	TouchFile(ctx context.Context, turnID, path string) error
}

// Registry is an ordered, read-only handler set shared across sessions.
type Registry struct {
	handlers []Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

// NewDefaultRegistry wires the six standard handlers in dispatch order.
func NewDefaultRegistry(w GraphWriter) *Registry {
	return NewRegistry(
		NewContentHandler(w),
		NewThoughtHandler(w),
		NewToolCallHandler(w),
		NewDiffHandler(w),
		NewUsageHandler(),
		NewControlHandler(),
	)
}

// Match returns every handler accepting the event, in registration order.
func (r *Registry) Match(ev *core.Event) []Handler {
	var matched []Handler
	for _, h := range r.handlers {
		if h.CanHandle(ev) {
			matched = append(matched, h)
		}
	}
	return matched
}
