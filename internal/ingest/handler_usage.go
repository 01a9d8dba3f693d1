package ingest

import (
	"context"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/pkoukk/tiktoken-go"
)

// UsageHandler records token counts and signals response completion: the
// aggregator runs its idempotent finalize path when this handler reports
// ActionFinalizeTurn. When the event carries no counts, output tokens are
// estimated from the accumulated assistant content.
type UsageHandler struct {
	enc *tiktoken.Tiktoken
}

func NewUsageHandler() *UsageHandler {
	// Estimation is optional; without the encoding the handler still
	// finalizes, it just records zero counts as-is.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &UsageHandler{enc: enc}
}

func (h *UsageHandler) Name() string { return "usage" }

func (h *UsageHandler) CanHandle(ev *core.Event) bool {
	return ev.Type == core.EventUsage
}

func (h *UsageHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	turn.InputTokens += ev.Usage.InputTokens
	turn.OutputTokens += ev.Usage.OutputTokens

	if ev.Usage.InputTokens == 0 && ev.Usage.OutputTokens == 0 && h.enc != nil {
		if content := turn.Assistant.String(); content != "" {
			turn.OutputTokens += len(h.enc.Encode(content, nil, nil))
		}
	}

	return Result{Handled: true, Action: ActionFinalizeTurn}, nil
}
