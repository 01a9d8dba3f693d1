package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTurn() *TurnState {
	return newTurnState("s", "question", 0, time.Now().UTC())
}

func TestContentHandler_FlushBoundaries(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	h := NewContentHandler(w)
	turn := testTurn()

	// Below the boundary nothing is flushed.
	res, err := h.Handle(ctx, assistantEvent(strings.Repeat("a", 499)), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionAppended, res.Action)
	assert.Empty(t, w.previews)

	// Crossing the boundary flushes a preview.
	res, err = h.Handle(ctx, assistantEvent("bb"), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionPreviewFlushed, res.Action)
	assert.Len(t, w.previews[turn.ID], 501)

	// More content below the next boundary does not flush again.
	res, err = h.Handle(ctx, assistantEvent("c"), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionAppended, res.Action)
}

func TestContentHandler_PreviewTruncated(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	h := NewContentHandler(w)
	turn := testTurn()

	_, err := h.Handle(ctx, assistantEvent(strings.Repeat("x", 3000)), turn)
	require.NoError(t, err)

	assert.Len(t, w.previews[turn.ID], previewLimit)
	// The full content stays in the accumulator.
	assert.Equal(t, 3000, turn.Assistant.Len())
}

func TestContentHandler_IgnoresUserAndEmpty(t *testing.T) {
	h := NewContentHandler(newFakeWriter())

	assert.False(t, h.CanHandle(userEvent("hello")))
	assert.False(t, h.CanHandle(assistantEvent("")))
	assert.True(t, h.CanHandle(assistantEvent("hi")))
}

func TestThoughtHandler_QueuesForLinkage(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	h := NewThoughtHandler(w)
	turn := testTurn()

	for _, thought := range []string{"first", "second"} {
		res, err := h.Handle(ctx, &core.Event{Thought: thought, Timestamp: time.Now()}, turn)
		require.NoError(t, err)
		assert.Equal(t, ActionReasoningStored, res.Action)
	}

	require.Len(t, w.reasonings, 2)
	assert.Equal(t, 0, w.reasonings[0].Sequence)
	assert.Equal(t, 1, w.reasonings[1].Sequence)
	assert.Len(t, turn.PendingReasoning, 2)
	// Same input, same hash.
	assert.Equal(t, contentHash("first"), w.reasonings[0].ContentHash)
	assert.NotEqual(t, w.reasonings[0].ContentHash, w.reasonings[1].ContentHash)
}

func TestThoughtHandler_PreviewLimit(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	h := NewThoughtHandler(w)

	_, err := h.Handle(ctx, &core.Event{Thought: strings.Repeat("y", 5000)}, testTurn())
	require.NoError(t, err)
	assert.Len(t, w.reasonings[0].Preview, reasoningPreviewLimit)
}

func TestToolCallHandler_DrainsPendingReasoningOnce(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	thought := NewThoughtHandler(w)
	tool := NewToolCallHandler(w)
	turn := testTurn()

	_, err := thought.Handle(ctx, &core.Event{Thought: "plan the edit"}, turn)
	require.NoError(t, err)

	res, err := tool.Handle(ctx, toolEvent("Read", `{"file_path":"a.go"}`), turn)
	require.NoError(t, err)
	first := res.NodeID
	assert.Equal(t, []string{w.reasonings[0].ID}, w.links[first])

	// The next tool call gets no stale links.
	res, err = tool.Handle(ctx, toolEvent("Bash", `{"command":"go vet"}`), turn)
	require.NoError(t, err)
	assert.Empty(t, w.links[res.NodeID])
}

func TestToolCallHandler_QueueClearedWhenLinkFails(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	w.failLink = true
	thought := NewThoughtHandler(w)
	tool := NewToolCallHandler(w)
	turn := testTurn()

	_, err := thought.Handle(ctx, &core.Event{Thought: "plan"}, turn)
	require.NoError(t, err)

	// Link write fails but the queue is still cleared so the reasoning can
	// never attach to a later call.
	_, err = tool.Handle(ctx, toolEvent("Edit", `{"file_path":"a.go"}`), turn)
	require.NoError(t, err)
	assert.Empty(t, turn.PendingReasoning)

	w.failLink = false
	_, err = tool.Handle(ctx, toolEvent("Edit", `{"file_path":"b.go"}`), turn)
	require.NoError(t, err)
	assert.Empty(t, w.links)
}

func TestToolCallHandler_FileAttribution(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		args       string
		wantPath   string
		wantAction string
	}{
		{
			name:       "complete edit args",
			tool:       "Edit",
			args:       `{"file_path":"internal/a.go","old_string":"x","new_string":"y"}`,
			wantPath:   "internal/a.go",
			wantAction: FileActionEdit,
		},
		{
			name:       "write creates",
			tool:       "Write",
			args:       `{"file_path":"new.go","content":"package main"}`,
			wantPath:   "new.go",
			wantAction: FileActionCreate,
		},
		{
			name:       "partial streaming fragment",
			tool:       "Read",
			args:       `{"file_path":"cmd/ser`,
			wantPath:   "cmd/ser",
			wantAction: FileActionRead,
		},
		{
			name:     "shell tool gets no path",
			tool:     "Bash",
			args:     `{"command":"cat a.go"}`,
			wantPath: "",
		},
		{
			name:     "malformed args",
			tool:     "Edit",
			args:     `not json at all`,
			wantPath: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWriter()
			turn := testTurn()

			_, err := NewToolCallHandler(w).Handle(context.Background(), toolEvent(tt.tool, tt.args), turn)
			require.NoError(t, err)

			require.Len(t, w.toolCalls, 1)
			assert.Equal(t, tt.wantPath, w.toolCalls[0].FilePath)
			assert.Equal(t, tt.wantAction, w.toolCalls[0].FileAction)
			assert.Equal(t, tt.wantPath != "", turn.LastToolCallHasFile)
		})
	}
}

func TestDiffHandler_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	tool := NewToolCallHandler(w)
	diff := NewDiffHandler(w)
	turn := testTurn()

	// Bash produces no path of its own; the first diff backfills it.
	res, err := tool.Handle(ctx, toolEvent("Bash", `{"command":"patch < fix.diff"}`), turn)
	require.NoError(t, err)
	tcID := res.NodeID

	dres, err := diff.Handle(ctx, &core.Event{Diff: core.DiffPayload{File: "a.go"}}, turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFileBackfilled, dres.Action)
	assert.Equal(t, [2]string{"a.go", FileActionEdit}, w.backfills[tcID])

	// A second diff for another file must not overwrite the attribution.
	dres, err = diff.Handle(ctx, &core.Event{Diff: core.DiffPayload{File: "b.go"}}, turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFileTouched, dres.Action)
	assert.Equal(t, [2]string{"a.go", FileActionEdit}, w.backfills[tcID])

	// Both files count as touched either way.
	assert.Equal(t, 1, turn.FilesTouched["a.go"])
	assert.Equal(t, 1, turn.FilesTouched["b.go"])
}

func TestDiffHandler_NoBackfillWhenToolHasPath(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	tool := NewToolCallHandler(w)
	diff := NewDiffHandler(w)
	turn := testTurn()

	_, err := tool.Handle(ctx, toolEvent("Edit", `{"file_path":"a.go"}`), turn)
	require.NoError(t, err)

	res, err := diff.Handle(ctx, &core.Event{Diff: core.DiffPayload{File: "a.go"}}, turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFileTouched, res.Action)
	assert.Empty(t, w.backfills)
}

func TestDiffHandler_HunkRequiresToolCall(t *testing.T) {
	ctx := context.Background()
	w := newFakeWriter()
	diff := NewDiffHandler(w)
	turn := testTurn()

	_, err := diff.Handle(ctx, &core.Event{Diff: core.DiffPayload{File: "a.go", Hunk: "@@"}}, turn)
	require.NoError(t, err)
	assert.Empty(t, w.hunks)
	assert.Equal(t, []string{"a.go"}, w.touched)
}

func TestUsageHandler_RecordsAndFinalizes(t *testing.T) {
	h := NewUsageHandler()
	turn := testTurn()

	res, err := h.Handle(context.Background(), usageEvent(100, 40), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFinalizeTurn, res.Action)
	assert.Equal(t, 100, turn.InputTokens)
	assert.Equal(t, 40, turn.OutputTokens)
}

func TestUsageHandler_EstimatesWhenCountsMissing(t *testing.T) {
	h := NewUsageHandler()
	if h.enc == nil {
		t.Skip("encoding unavailable")
	}
	turn := testTurn()
	turn.Assistant.WriteString("some assistant prose that certainly tokenizes to more than zero")

	res, err := h.Handle(context.Background(), usageEvent(0, 0), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFinalizeTurn, res.Action)
	assert.Greater(t, turn.OutputTokens, 0)
}

func TestControlHandler_Signals(t *testing.T) {
	ctx := context.Background()
	h := NewControlHandler()
	turn := testTurn()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	controlEv := func(signal string) *core.Event {
		return &core.Event{Type: core.EventControl, Timestamp: at, Metadata: map[string]any{"signal": signal}}
	}

	res, err := h.Handle(ctx, controlEv(core.SignalTurnStart), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionAcknowledged, res.Action)
	assert.Equal(t, at, turn.ControlStartedAt)

	res, err = h.Handle(ctx, controlEv(core.SignalPause), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionAcknowledged, res.Action)

	res, err = h.Handle(ctx, controlEv("something_new"), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionAcknowledged, res.Action)

	res, err = h.Handle(ctx, controlEv(core.SignalTurnEnd), turn)
	require.NoError(t, err)
	assert.Equal(t, ActionFinalizeTurn, res.Action)
	assert.Equal(t, at, turn.ControlEndedAt)
}
