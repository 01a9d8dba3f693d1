package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/kestrelworks/engram/internal/core"
)

// ThoughtHandler records a reasoning block as an immutable graph node and
// queues its id for causal linkage to the next tool call.
type ThoughtHandler struct {
	writer GraphWriter
}

func NewThoughtHandler(w GraphWriter) *ThoughtHandler {
	return &ThoughtHandler{writer: w}
}

func (h *ThoughtHandler) Name() string { return "thought" }

func (h *ThoughtHandler) CanHandle(ev *core.Event) bool {
	return ev.Thought != ""
}

func (h *ThoughtHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	r := &core.Reasoning{
		ID:          core.NewID(),
		TurnID:      turn.ID,
		Sequence:    turn.ReasoningCount,
		ContentHash: contentHash(ev.Thought),
		Preview:     truncate(ev.Thought, reasoningPreviewLimit),
		CreatedAt:   ev.Timestamp,
	}

	if err := h.writer.CreateReasoning(ctx, r); err != nil {
		return Result{}, fmt.Errorf("create reasoning: %w", err)
	}

	turn.ReasoningCount++
	turn.PendingReasoning = append(turn.PendingReasoning, r.ID)

	return Result{Handled: true, Action: ActionReasoningStored, NodeID: r.ID}, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
