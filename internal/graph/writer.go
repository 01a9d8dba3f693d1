package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelworks/engram/internal/core"
)

// Writer issues the graph mutations for the ingest pipeline and the memory
// engine. Every statement is an idempotent-safe upsert or property set; no
// transaction spans more than one call.
type Writer struct {
	store core.GraphStore
}

func NewWriter(store core.GraphStore) *Writer {
	return &Writer{store: store}
}

func (w *Writer) UpsertSession(ctx context.Context, s *core.Session) error {
	_, err := w.store.Execute(ctx, `
		MERGE (s:Session {id: $id})
		ON CREATE SET s.started_at = $started_at
		SET s.last_activity_at = $last_activity_at,
		    s.metadata = $metadata`,
		map[string]any{
			"id":               s.ID,
			"started_at":       s.StartedAt,
			"last_activity_at": s.LastActivityAt,
			"metadata":         encodeMeta(s.Metadata),
		})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (w *Writer) CreateTurn(ctx context.Context, t *core.Turn) error {
	_, err := w.store.Execute(ctx, `
		MATCH (s:Session {id: $session_id})
		MERGE (t:Turn {id: $id})
		ON CREATE SET t.sequence_index = $sequence,
		              t.user_content = $user_content,
		              t.vt_start = $vt_start, t.vt_end = $vt_end,
		              t.tt_start = $tt_start, t.tt_end = $tt_end,
		              t.is_finalized = false,
		              t.created_at = $created_at
		MERGE (s)-[:HAS_TURN]->(t)`,
		map[string]any{
			"id":           t.ID,
			"session_id":   t.SessionID,
			"sequence":     t.Sequence,
			"user_content": t.UserContent,
			"vt_start":     t.VTStart,
			"vt_end":       t.VTEnd,
			"tt_start":     t.TTStart,
			"tt_end":       t.TTEnd,
			"created_at":   t.CreatedAt,
		})
	if err != nil {
		return fmt.Errorf("create turn: %w", err)
	}
	return nil
}

func (w *Writer) SetTurnPreview(ctx context.Context, turnID, preview string) error {
	_, err := w.store.Execute(ctx, `
		MATCH (t:Turn {id: $id})
		SET t.assistant_preview = $preview`,
		map[string]any{"id": turnID, "preview": preview})
	if err != nil {
		return fmt.Errorf("set turn preview: %w", err)
	}
	return nil
}

// FinalizeTurn writes the aggregate snapshot and closes the turn's bitemporal
// window. Guarded so that a second finalize of the same turn is a no-op.
func (w *Writer) FinalizeTurn(ctx context.Context, t *core.Turn) error {
	_, err := w.store.Execute(ctx, `
		MATCH (t:Turn {id: $id})
		WHERE t.is_finalized = false
		SET t.assistant_preview = $assistant_preview,
		    t.tool_call_count = $tool_call_count,
		    t.input_tokens = $input_tokens,
		    t.output_tokens = $output_tokens,
		    t.files_touched = $files_touched,
		    t.vt_end = $vt_end, t.tt_end = $tt_end,
		    t.is_finalized = true`,
		map[string]any{
			"id":                t.ID,
			"assistant_preview": t.AssistantPreview,
			"tool_call_count":   t.ToolCallCount,
			"input_tokens":      t.InputTokens,
			"output_tokens":     t.OutputTokens,
			"files_touched":     t.FilesTouched,
			"vt_end":            t.VTEnd,
			"tt_end":            t.TTEnd,
		})
	if err != nil {
		return fmt.Errorf("finalize turn: %w", err)
	}
	return nil
}

func (w *Writer) CreateReasoning(ctx context.Context, r *core.Reasoning) error {
	_, err := w.store.Execute(ctx, `
		MATCH (t:Turn {id: $turn_id})
		MERGE (r:Reasoning {id: $id})
		ON CREATE SET r.sequence_index = $sequence,
		              r.content_hash = $hash,
		              r.preview = $preview,
		              r.created_at = $created_at
		MERGE (t)-[:CONTAINS]->(r)`,
		map[string]any{
			"id":         r.ID,
			"turn_id":    r.TurnID,
			"sequence":   r.Sequence,
			"hash":       r.ContentHash,
			"preview":    r.Preview,
			"created_at": r.CreatedAt,
		})
	if err != nil {
		return fmt.Errorf("create reasoning: %w", err)
	}
	return nil
}

func (w *Writer) CreateToolCall(ctx context.Context, tc *core.ToolCall) error {
	_, err := w.store.Execute(ctx, `
		MATCH (t:Turn {id: $turn_id})
		MERGE (c:ToolCall {id: $id})
		ON CREATE SET c.call_id = $call_id,
		              c.name = $name,
		              c.tool_type = $tool_type,
		              c.args_preview = $args_preview,
		              c.file_path = $file_path,
		              c.file_action = $file_action,
		              c.status = $status,
		              c.sequence_index = $sequence,
		              c.after_reasoning_seq = $after_reasoning,
		              c.created_at = $created_at
		MERGE (t)-[:CONTAINS]->(c)`,
		map[string]any{
			"id":              tc.ID,
			"turn_id":         tc.TurnID,
			"call_id":         tc.CallID,
			"name":            tc.Name,
			"tool_type":       tc.ToolType,
			"args_preview":    tc.ArgsPreview,
			"file_path":       tc.FilePath,
			"file_action":     tc.FileAction,
			"status":          tc.Status,
			"sequence":        tc.Sequence,
			"after_reasoning": tc.AfterReasoning,
			"created_at":      tc.CreatedAt,
		})
	if err != nil {
		return fmt.Errorf("create tool call: %w", err)
	}
	return nil
}

// LinkReasoningBatch records the causal TRIGGERS edges for one drained pending
// queue in a single statement.
func (w *Writer) LinkReasoningBatch(ctx context.Context, toolCallID string, reasoningIDs []string) error {
	if len(reasoningIDs) == 0 {
		return nil
	}
	_, err := w.store.Execute(ctx, `
		MATCH (c:ToolCall {id: $tool_call_id})
		UNWIND $reasoning_ids AS rid
		MATCH (r:Reasoning {id: rid})
		MERGE (r)-[:TRIGGERS]->(c)`,
		map[string]any{
			"tool_call_id":  toolCallID,
			"reasoning_ids": reasoningIDs,
		})
	if err != nil {
		return fmt.Errorf("link reasoning batch: %w", err)
	}
	return nil
}

// BackfillToolCallFile sets file attribution only when none exists yet; the
// guard enforces first-writer-wins at the store as well as in turn state.
func (w *Writer) BackfillToolCallFile(ctx context.Context, toolCallID, path, action string) error {
	_, err := w.store.Execute(ctx, `
		MATCH (c:ToolCall {id: $id})
		WHERE c.file_path IS NULL OR c.file_path = ''
		SET c.file_path = $path, c.file_action = $action`,
		map[string]any{"id": toolCallID, "path": path, "action": action})
	if err != nil {
		return fmt.Errorf("backfill tool call file: %w", err)
	}
	return nil
}

func (w *Writer) CreateDiffHunk(ctx context.Context, h *core.DiffHunk) error {
	_, err := w.store.Execute(ctx, `
		MATCH (c:ToolCall {id: $tool_call_id})
		MERGE (d:DiffHunk {id: $id})
		ON CREATE SET d.file_path = $file_path,
		              d.preview = $preview,
		              d.created_at = $created_at
		MERGE (c)-[:PRODUCED]->(d)`,
		map[string]any{
			"id":           h.ID,
			"tool_call_id": h.ToolCallID,
			"file_path":    h.FilePath,
			"preview":      h.Preview,
			"created_at":   h.CreatedAt,
		})
	if err != nil {
		return fmt.Errorf("create diff hunk: %w", err)
	}
	return nil
}

func (w *Writer) TouchFile(ctx context.Context, turnID, path string) error {
	_, err := w.store.Execute(ctx, `
		MATCH (t:Turn {id: $turn_id})
		MERGE (f:File {path: $path})
		MERGE (t)-[e:TOUCHED]->(f)
		ON CREATE SET e.count = 1
		ON MATCH SET e.count = e.count + 1`,
		map[string]any{"turn_id": turnID, "path": path})
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	return nil
}

// encodeMeta serializes session metadata to JSON; node properties cannot hold
// nested maps.
func encodeMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}
