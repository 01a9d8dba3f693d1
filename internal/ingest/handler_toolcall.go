package ingest

import (
	"context"
	"fmt"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
)

// ToolCallHandler records a tool invocation, drains the pending reasoning
// queue into one TRIGGERS batch, and attributes a file path/action when one
// can be extracted from the (possibly partial) arguments payload.
type ToolCallHandler struct {
	writer GraphWriter
}

func NewToolCallHandler(w GraphWriter) *ToolCallHandler {
	return &ToolCallHandler{writer: w}
}

func (h *ToolCallHandler) Name() string { return "tool_call" }

func (h *ToolCallHandler) CanHandle(ev *core.Event) bool {
	return ev.ToolCall.Name != ""
}

func (h *ToolCallHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	toolType := inferToolType(ev.ToolCall.Name)

	var filePath, fileAction string
	if isFileTool(toolType) {
		// Extraction is best-effort: a malformed streaming fragment still
		// produces a tool call, just without file attribution.
		if filePath = extractFilePath(ev.ToolCall.ArgumentsDelta); filePath != "" {
			fileAction = inferFileAction(toolType)
		}
	}

	tc := &core.ToolCall{
		ID:             core.NewID(),
		TurnID:         turn.ID,
		CallID:         ev.ToolCall.ID,
		Name:           ev.ToolCall.Name,
		ToolType:       toolType,
		ArgsPreview:    truncate(ev.ToolCall.ArgumentsDelta, flushBoundary),
		FilePath:       filePath,
		FileAction:     fileAction,
		Status:         "started",
		Sequence:       turn.ToolCallCount,
		AfterReasoning: turn.ReasoningCount - 1,
		CreatedAt:      ev.Timestamp,
	}

	if err := h.writer.CreateToolCall(ctx, tc); err != nil {
		return Result{}, fmt.Errorf("create tool call: %w", err)
	}

	// Drain the pending queue exactly once. The queue is cleared even when the
	// link write fails so a reasoning block can never be re-linked to a later
	// tool call.
	if len(turn.PendingReasoning) > 0 {
		if err := h.writer.LinkReasoningBatch(ctx, tc.ID, turn.PendingReasoning); err != nil {
			log.FromCtx(ctx).Error().Err(err).Str("tool_call", tc.ID).Msg("reasoning link failed")
		}
		turn.PendingReasoning = nil
	}

	turn.ToolCallCount++
	turn.ToolNames = append(turn.ToolNames, ev.ToolCall.Name)
	turn.LastToolCallID = tc.ID
	turn.LastToolCallHasFile = filePath != ""

	return Result{Handled: true, Action: ActionToolCallStored, NodeID: tc.ID}, nil
}
