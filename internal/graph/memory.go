package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

func (w *Writer) CreateMemory(ctx context.Context, m *core.Memory) error {
	_, err := w.store.Execute(ctx, `
		MERGE (m:Memory {id: $id})
		ON CREATE SET m.content = $content,
		              m.type = $type,
		              m.tags = $tags,
		              m.project = $project,
		              m.source = $source,
		              m.vt_start = $vt_start, m.vt_end = $vt_end,
		              m.tt_start = $tt_start, m.tt_end = $tt_end`,
		map[string]any{
			"id":       m.ID,
			"content":  m.Content,
			"type":     string(m.Type),
			"tags":     m.Tags,
			"project":  m.Project,
			"source":   m.Source,
			"vt_start": m.VTStart,
			"vt_end":   m.VTEnd,
			"tt_start": m.TTStart,
			"tt_end":   m.TTEnd,
		})
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// InvalidateMemory closes the memory's valid-time window. The guard makes the
// call idempotent and ensures a closed window is never reopened or moved.
func (w *Writer) InvalidateMemory(ctx context.Context, id string, now time.Time) error {
	_, err := w.store.Execute(ctx, `
		MATCH (m:Memory {id: $id})
		WHERE m.vt_end >= $open
		SET m.vt_end = $now`,
		map[string]any{"id": id, "open": core.OpenEnd, "now": now})
	if err != nil {
		return fmt.Errorf("invalidate memory: %w", err)
	}
	return nil
}

// MemoryValidity returns the current valid-time window for a memory.
func (w *Writer) MemoryValidity(ctx context.Context, id string) (vtStart, vtEnd time.Time, err error) {
	rows, err := w.store.Execute(ctx, `
		MATCH (m:Memory {id: $id})
		RETURN m.vt_start AS vt_start, m.vt_end AS vt_end`,
		map[string]any{"id": id})
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("memory validity: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("memory %s not found", id)
	}
	vtStart, _ = rows[0]["vt_start"].(time.Time)
	vtEnd, _ = rows[0]["vt_end"].(time.Time)
	return vtStart, vtEnd, nil
}

// RecallMemories returns memories for a project, newest first. Invalidated
// memories are excluded unless includeInvalidated is set.
func (w *Writer) RecallMemories(ctx context.Context, project string, includeInvalidated bool, now time.Time, limit int) ([]core.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		MATCH (m:Memory)
		WHERE ($project = '' OR m.project = $project)`
	if !includeInvalidated {
		query += `
		  AND m.vt_end >= $now`
	}
	query += `
		RETURN m.id AS id, m.content AS content, m.type AS type,
		       m.tags AS tags, m.project AS project, m.source AS source,
		       m.vt_start AS vt_start, m.vt_end AS vt_end,
		       m.tt_start AS tt_start, m.tt_end AS tt_end
		ORDER BY m.vt_start DESC
		LIMIT $limit`

	rows, err := w.store.Execute(ctx, query, map[string]any{
		"project": project,
		"now":     now,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}

	memories := make([]core.Memory, 0, len(rows))
	for _, row := range rows {
		memories = append(memories, memoryFromRow(row))
	}
	return memories, nil
}

func memoryFromRow(row map[string]any) core.Memory {
	m := core.Memory{}
	m.ID, _ = row["id"].(string)
	m.Content, _ = row["content"].(string)
	if t, ok := row["type"].(string); ok {
		m.Type = core.MemoryType(t)
	}
	m.Project, _ = row["project"].(string)
	m.Source, _ = row["source"].(string)
	if tags, ok := row["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				m.Tags = append(m.Tags, s)
			}
		}
	}
	m.VTStart, _ = row["vt_start"].(time.Time)
	m.VTEnd, _ = row["vt_end"].(time.Time)
	m.TTStart, _ = row["tt_start"].(time.Time)
	m.TTEnd, _ = row["tt_end"].(time.Time)
	return m
}

// RecentTurns returns finalized turn previews for a session's context window.
func (w *Writer) RecentTurns(ctx context.Context, sessionID string, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := w.store.Execute(ctx, `
		MATCH (s:Session {id: $session_id})-[:HAS_TURN]->(t:Turn)
		WHERE t.is_finalized = true
		RETURN t.id AS id, t.sequence_index AS sequence_index,
		       t.user_content AS user_content,
		       t.assistant_preview AS assistant_preview,
		       t.tool_call_count AS tool_call_count,
		       t.created_at AS created_at
		ORDER BY t.sequence_index DESC
		LIMIT $limit`,
		map[string]any{"session_id": sessionID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	turns := make([]core.Turn, 0, len(rows))
	for _, row := range rows {
		t := core.Turn{SessionID: sessionID}
		t.ID, _ = row["id"].(string)
		if seq, ok := row["sequence_index"].(int64); ok {
			t.Sequence = int(seq)
		}
		t.UserContent, _ = row["user_content"].(string)
		t.AssistantPreview, _ = row["assistant_preview"].(string)
		if n, ok := row["tool_call_count"].(int64); ok {
			t.ToolCallCount = int(n)
		}
		t.CreatedAt, _ = row["created_at"].(time.Time)
		t.IsFinalized = true
		turns = append(turns, t)
	}
	return turns, nil
}
