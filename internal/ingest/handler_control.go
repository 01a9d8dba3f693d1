package ingest

import (
	"context"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
)

// ControlHandler acknowledges orchestration signals. turn_start/turn_end stamp
// control timestamps on the turn; turn_end also triggers finalization. Other
// signals are log-only stubs.
type ControlHandler struct{}

func NewControlHandler() *ControlHandler {
	return &ControlHandler{}
}

func (h *ControlHandler) Name() string { return "control" }

func (h *ControlHandler) CanHandle(ev *core.Event) bool {
	return ev.Type == core.EventControl
}

func (h *ControlHandler) Handle(ctx context.Context, ev *core.Event, turn *TurnState) (Result, error) {
	logger := log.FromCtx(ctx)

	switch ev.Signal() {
	case core.SignalTurnStart:
		turn.ControlStartedAt = ev.Timestamp
	case core.SignalTurnEnd:
		turn.ControlEndedAt = ev.Timestamp
		return Result{Handled: true, Action: ActionFinalizeTurn}, nil
	case core.SignalPause, core.SignalResume:
		logger.Debug().Str("signal", ev.Signal()).Str("turn", turn.ID).Msg("control signal")
	default:
		logger.Debug().Str("signal", ev.Signal()).Msg("unknown control signal")
	}

	return Result{Handled: true, Action: ActionAcknowledged}, nil
}
