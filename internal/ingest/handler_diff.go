package ingest

import (
	"context"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
)

// DiffHandler attributes file changes. The most recent tool call is backfilled
// with the file path only when it has none yet (first-writer-wins); the
// per-turn files-touched counter is incremented regardless of linkage.
type DiffHandler struct {
	writer GraphWriter
}

func NewDiffHandler(w GraphWriter) *DiffHandler {
	return &DiffHandler{writer: w}
}

func (h *DiffHandler) Name() string { return "diff" }

func (h *DiffHandler) CanHandle(ev *core.Event) bool {
	return ev.Diff.File != ""
}

func (h *DiffHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	logger := log.FromCtx(ctx)
	file := ev.Diff.File

	turn.FilesTouched[file]++
	if err := h.writer.TouchFile(ctx, turn.ID, file); err != nil {
		logger.Warn().Err(err).Str("file", file).Msg("touch file failed")
	}

	action := ActionFileTouched

	if turn.LastToolCallID != "" && !turn.LastToolCallHasFile {
		if err := h.writer.BackfillToolCallFile(ctx, turn.LastToolCallID, file, FileActionEdit); err != nil {
			logger.Warn().Err(err).Str("tool_call", turn.LastToolCallID).Msg("file backfill failed")
		} else {
			turn.LastToolCallHasFile = true
			action = ActionFileBackfilled
		}
	}

	if ev.Diff.Hunk != "" && turn.LastToolCallID != "" {
		hunk := &core.DiffHunk{
			ID:         core.NewID(),
			ToolCallID: turn.LastToolCallID,
			FilePath:   file,
			Preview:    truncate(ev.Diff.Hunk, previewLimit),
			CreatedAt:  ev.Timestamp,
		}
		if err := h.writer.CreateDiffHunk(ctx, hunk); err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("diff hunk write failed")
		}
	}

	return Result{Handled: true, Action: action}, nil
}
