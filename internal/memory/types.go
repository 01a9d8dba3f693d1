package memory

import (
	"context"
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

// MemoryStore is the graph-backed persistence surface for memories.
// Implemented by graph.Writer; faked in tests.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m *core.Memory) error
	InvalidateMemory(ctx context.Context, id string, now time.Time) error
	MemoryValidity(ctx context.Context, id string) (vtStart, vtEnd time.Time, err error)
	RecallMemories(ctx context.Context, project string, includeInvalidated bool, now time.Time, limit int) ([]core.Memory, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]core.Turn, error)
}

// ConflictRepository is the durable audit trail for flagged conflicts.
type ConflictRepository interface {
	Save(ctx context.Context, c *core.Conflict) error
	Get(ctx context.Context, id string) (*core.Conflict, error)
	SetStatus(ctx context.Context, id string, status core.ConflictStatus) error
	ListPending(ctx context.Context, limit int) ([]core.Conflict, error)
}

type RememberRequest struct {
	Content string          `json:"content"`
	Type    core.MemoryType `json:"type"`
	Tags    []string        `json:"tags,omitempty"`
	Project string          `json:"project,omitempty"`
	Source  string          `json:"source,omitempty"`
}

type RememberResult struct {
	MemoryID    string          `json:"memory_id"`
	Duplicate   bool            `json:"duplicate"`
	Invalidated []string        `json:"invalidated,omitempty"`
	Conflicts   []core.Conflict `json:"conflicts,omitempty"`
}

// RecallItem is a recalled memory plus its validity flag at recall time.
type RecallItem struct {
	core.Memory
	Invalidated bool `json:"invalidated"`
}

// ProjectContext is the assembled context for a project/session pair.
type ProjectContext struct {
	Project     string                            `json:"project"`
	Memories    map[core.MemoryType][]core.Memory `json:"memories"`
	RecentTurns []core.Turn                       `json:"recent_turns,omitempty"`
}
