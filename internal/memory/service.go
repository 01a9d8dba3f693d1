package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/pkg/log"
)

// Service exposes the memory operations consumed by the tool surface:
// Remember, Recall, Context, and the conflict review operations.
type Service struct {
	store     MemoryStore
	engine    *Engine
	conflicts ConflictRepository
	clock     func() time.Time
}

func NewService(store MemoryStore, engine *Engine, conflicts ConflictRepository) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		conflicts: conflicts,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Remember stores new content after running it through the conflict pipeline.
// A duplicate verdict short-circuits: the existing memory's id is returned and
// nothing is written. Superseded memories are soft-invalidated, never deleted.
func (s *Service) Remember(ctx context.Context, req RememberRequest) (RememberResult, error) {
	logger := log.FromCtx(ctx)

	if strings.TrimSpace(req.Content) == "" {
		return RememberResult{}, fmt.Errorf("memory content is empty")
	}
	if req.Type == "" {
		req.Type = core.MemoryFact
	}

	memoryID := core.NewID()
	d := s.engine.evaluate(ctx, memoryID, req.Content, req.Project)

	if d.duplicateOf != "" {
		// The new node is never created on a duplicate, so the audit rows
		// must reference the surviving memory instead of the skipped id.
		for i := range d.conflicts {
			d.conflicts[i].MemoryID = d.duplicateOf
		}
		s.recordConflicts(ctx, d.conflicts)
		logger.Info().Str("existing", d.duplicateOf).Msg("duplicate memory, skipping write")
		return RememberResult{MemoryID: d.duplicateOf, Duplicate: true, Conflicts: d.conflicts}, nil
	}

	s.recordConflicts(ctx, d.conflicts)

	now := s.clock()
	m := &core.Memory{
		ID:      memoryID,
		Content: req.Content,
		Type:    req.Type,
		Tags:    req.Tags,
		Project: req.Project,
		Source:  req.Source,
		VTStart: now,
		VTEnd:   core.OpenEnd,
		TTStart: now,
		TTEnd:   core.OpenEnd,
	}
	if err := s.store.CreateMemory(ctx, m); err != nil {
		return RememberResult{}, fmt.Errorf("store memory: %w", err)
	}

	invalidated := make([]string, 0, len(d.invalidate))
	for _, id := range d.invalidate {
		if err := s.store.InvalidateMemory(ctx, id, now); err != nil {
			logger.Error().Err(err).Str("memory", id).Msg("invalidation failed")
			continue
		}
		invalidated = append(invalidated, id)
		if s.engine.metrics != nil {
			s.engine.metrics.Invalidations.Inc()
		}
	}

	return RememberResult{MemoryID: memoryID, Invalidated: invalidated, Conflicts: d.conflicts}, nil
}

// Recall returns memories for a project, optionally including invalidated
// ones (flagged). A query filters by substring match over content and tags.
func (s *Service) Recall(ctx context.Context, query, project string, includeInvalidated bool, limit int) ([]RecallItem, error) {
	now := s.clock()
	memories, err := s.store.RecallMemories(ctx, project, includeInvalidated, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	items := make([]RecallItem, 0, len(memories))
	for _, m := range memories {
		if q != "" && !matchesQuery(m, q) {
			continue
		}
		items = append(items, RecallItem{Memory: m, Invalidated: m.Invalidated(now)})
	}
	return items, nil
}

// Context assembles the active memories for a project grouped by type, plus
// recent finalized turns for the session when one is given.
func (s *Service) Context(ctx context.Context, sessionID, project string) (*ProjectContext, error) {
	logger := log.FromCtx(ctx)
	now := s.clock()

	memories, err := s.store.RecallMemories(ctx, project, false, now, 100)
	if err != nil {
		return nil, fmt.Errorf("context memories: %w", err)
	}

	pc := &ProjectContext{
		Project:  project,
		Memories: map[core.MemoryType][]core.Memory{},
	}
	for _, m := range memories {
		pc.Memories[m.Type] = append(pc.Memories[m.Type], m)
	}

	if sessionID != "" {
		turns, err := s.store.RecentTurns(ctx, sessionID, 10)
		if err != nil {
			logger.Warn().Err(err).Str("session", sessionID).Msg("recent turns unavailable")
		} else {
			pc.RecentTurns = turns
		}
	}
	return pc, nil
}

// DetectConflicts scans the active memories of a project against each other
// and records pending conflicts for review. No invalidation happens here.
func (s *Service) DetectConflicts(ctx context.Context, project string) ([]core.Conflict, error) {
	logger := log.FromCtx(ctx)
	now := s.clock()

	memories, err := s.store.RecallMemories(ctx, project, false, now, 100)
	if err != nil {
		return nil, fmt.Errorf("conflict scan: %w", err)
	}

	seen := map[string]struct{}{}
	var found []core.Conflict

	for _, m := range memories {
		candidates, err := s.engine.search.FindConflictCandidates(ctx, m.Content, project)
		if err != nil {
			logger.Warn().Err(err).Str("memory", m.ID).Msg("candidate search failed during scan")
			continue
		}
		var others []core.Candidate
		for _, c := range candidates {
			if c.ID == m.ID {
				continue
			}
			if _, dup := seen[pairKey(m.ID, c.ID)]; dup {
				continue
			}
			others = append(others, c)
		}
		if len(others) == 0 {
			continue
		}

		verdicts, err := s.engine.classifier.Classify(ctx, m.Content, others)
		if err != nil {
			logger.Warn().Err(err).Str("memory", m.ID).Msg("classification failed during scan")
			continue
		}
		for i, verdict := range verdicts {
			seen[pairKey(m.ID, others[i].ID)] = struct{}{}
			if verdict.Relation == core.RelationIndependent {
				continue
			}
			found = append(found, newConflict(m.ID, others[i].ID, verdict, core.ConflictPending, now))
		}
	}

	s.recordConflicts(ctx, found)
	return found, nil
}

// Resolve applies a reviewer decision to a recorded conflict.
func (s *Service) Resolve(ctx context.Context, conflictID, action string) error {
	if s.conflicts == nil {
		return fmt.Errorf("conflict repository not configured")
	}
	c, err := s.conflicts.Get(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("load conflict: %w", err)
	}

	switch action {
	case core.ActionInvalidateOld:
		if err := s.store.InvalidateMemory(ctx, c.OtherMemoryID, s.clock()); err != nil {
			return fmt.Errorf("invalidate %s: %w", c.OtherMemoryID, err)
		}
		return s.conflicts.SetStatus(ctx, conflictID, core.ConflictConfirmed)
	case core.ActionKeepBoth:
		return s.conflicts.SetStatus(ctx, conflictID, core.ConflictDismissed)
	default:
		return fmt.Errorf("unknown resolution action %q", action)
	}
}

// Dismiss marks a recorded conflict as reviewed with no action taken.
func (s *Service) Dismiss(ctx context.Context, conflictID string) error {
	if s.conflicts == nil {
		return fmt.Errorf("conflict repository not configured")
	}
	if _, err := s.conflicts.Get(ctx, conflictID); err != nil {
		return fmt.Errorf("load conflict: %w", err)
	}
	return s.conflicts.SetStatus(ctx, conflictID, core.ConflictDismissed)
}

// PendingConflicts lists conflicts awaiting review.
func (s *Service) PendingConflicts(ctx context.Context, limit int) ([]core.Conflict, error) {
	if s.conflicts == nil {
		return nil, nil
	}
	return s.conflicts.ListPending(ctx, limit)
}

func (s *Service) recordConflicts(ctx context.Context, conflicts []core.Conflict) {
	if s.conflicts == nil {
		return
	}
	logger := log.FromCtx(ctx)
	for i := range conflicts {
		if err := s.conflicts.Save(ctx, &conflicts[i]); err != nil {
			logger.Warn().Err(err).Str("conflict", conflicts[i].ID).Msg("conflict audit write failed")
		}
	}
}

func matchesQuery(m core.Memory, q string) bool {
	if strings.Contains(strings.ToLower(m.Content), q) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
