package ingest

import (
	"context"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
)

// ContentHandler accumulates assistant content onto the active turn and
// flushes a truncated preview to the graph every time the accumulated length
// crosses a flush boundary, keeping long-running turns queryable before
// completion.
type ContentHandler struct {
	writer GraphWriter
}

func NewContentHandler(w GraphWriter) *ContentHandler {
	return &ContentHandler{writer: w}
}

func (h *ContentHandler) Name() string { return "content" }

func (h *ContentHandler) CanHandle(ev *core.Event) bool {
	return ev.Type == core.EventContent && ev.Role == core.RoleAssistant && ev.Content != ""
}

func (h *ContentHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	turn.Assistant.WriteString(ev.Content)

	total := turn.Assistant.Len()
	if total/flushBoundary > turn.flushedLen/flushBoundary {
		turn.flushedLen = total
		preview := truncate(turn.Assistant.String(), previewLimit)
		if err := h.writer.SetTurnPreview(ctx, turn.ID, preview); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("turn", turn.ID).Msg("preview flush failed")
			return Result{Handled: true, Action: ActionAppended}, nil
		}
		return Result{Handled: true, Action: ActionPreviewFlushed}, nil
	}

	return Result{Handled: true, Action: ActionAppended}, nil
}
