package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/internal/observability"
	"github.com/kestrelworks/engram/pkg/log"
)

const defaultConfirmTimeout = 30 * time.Second

// decision is the outcome of evaluating new content against existing memories.
type decision struct {
	duplicateOf string
	invalidate  []string
	conflicts   []core.Conflict
}

// Engine runs the conflict detection pipeline: candidate search, validity
// enrichment, relation classification, resolution policy, soft invalidation.
type Engine struct {
	store      MemoryStore
	search     core.CandidateSearcher
	classifier core.RelationClassifier
	confirmer  core.Confirmer
	metrics    *observability.ConflictMetrics

	confirmTimeout time.Duration
	clock          func() time.Time
}

func NewEngine(store MemoryStore, search core.CandidateSearcher, classifier core.RelationClassifier) *Engine {
	return &Engine{
		store:          store,
		search:         search,
		classifier:     classifier,
		confirmTimeout: defaultConfirmTimeout,
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

// SetConfirmer installs the optional interactive confirmation channel.
func (e *Engine) SetConfirmer(c core.Confirmer) {
	e.confirmer = c
}

// SetConfirmTimeout bounds how long a single confirmation may block.
func (e *Engine) SetConfirmTimeout(d time.Duration) {
	if d > 0 {
		e.confirmTimeout = d
	}
}

func (e *Engine) SetMetrics(m *observability.ConflictMetrics) {
	e.metrics = m
}

// evaluate runs the pipeline for new content. Every failure degrades instead
// of propagating: no candidates means no conflicts, an unparseable classifier
// means the memory is stored without enrichment.
func (e *Engine) evaluate(ctx context.Context, newMemoryID, content, project string) decision {
	logger := log.FromCtx(ctx)
	var d decision

	candidates, err := e.search.FindConflictCandidates(ctx, content, project)
	if err != nil {
		logger.Warn().Err(err).Msg("candidate search failed, storing without conflict scan")
		return d
	}
	candidates = e.enrichValidity(ctx, candidates)
	if len(candidates) == 0 {
		return d
	}

	verdicts, err := e.classifier.Classify(ctx, content, candidates)
	if err != nil {
		var unparsed *UnparsedError
		if errors.As(err, &unparsed) {
			logger.Warn().Str("raw", truncateRaw(unparsed.Raw)).Msg("classifier output unparseable, skipping enrichment")
		} else {
			logger.Warn().Err(err).Msg("classifier unavailable, skipping enrichment")
		}
		if e.metrics != nil {
			e.metrics.ClassifierErrors.Inc()
		}
		return d
	}

	now := e.clock()
	for i, verdict := range verdicts {
		cand := candidates[i]
		if e.metrics != nil {
			e.metrics.ConflictsDetected.WithLabelValues(string(verdict.Relation)).Inc()
		}

		switch verdict.Relation {
		case core.RelationDuplicate:
			if d.duplicateOf == "" {
				d.duplicateOf = cand.ID
			}
			d.conflicts = append(d.conflicts, newConflict(newMemoryID, cand.ID, verdict, core.ConflictAutoResolved, now))

		case core.RelationSupersedes, core.RelationContradiction:
			if verdict.SuggestedAction != core.ActionInvalidateOld {
				d.conflicts = append(d.conflicts, newConflict(newMemoryID, cand.ID, verdict, core.ConflictPending, now))
				continue
			}
			status := e.applyInvalidationPolicy(ctx, content, cand, verdict, &d)
			d.conflicts = append(d.conflicts, newConflict(newMemoryID, cand.ID, verdict, status, now))

		case core.RelationAugments:
			d.conflicts = append(d.conflicts, newConflict(newMemoryID, cand.ID, verdict, core.ConflictPending, now))

		case core.RelationIndependent:
			// keep both, no audit record
		}
	}
	return d
}

// applyInvalidationPolicy decides whether the superseded candidate is
// invalidated. With an interactive channel the user confirms first; declining
// keeps both. Without one (or when the confirm call times out or fails) the
// policy auto-invalidates.
func (e *Engine) applyInvalidationPolicy(ctx context.Context, newContent string, cand core.Candidate, verdict core.Classification, d *decision) core.ConflictStatus {
	logger := log.FromCtx(ctx)

	if e.confirmer == nil || !e.confirmer.Available(ctx) {
		d.invalidate = append(d.invalidate, cand.ID)
		return core.ConflictAutoResolved
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	res, err := e.confirmer.Confirm(confirmCtx, fmt.Sprintf(
		"New memory %q appears to supersede %q (%s). Invalidate the old one?",
		truncateRaw(newContent), truncateRaw(cand.Content), verdict.Reasoning),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confirm": map[string]any{"type": "boolean", "description": "invalidate the old memory"},
			},
		})
	if err != nil {
		logger.Warn().Err(err).Msg("confirmation unavailable, auto-invalidating")
		d.invalidate = append(d.invalidate, cand.ID)
		return core.ConflictAutoResolved
	}
	if !res.Accepted {
		return core.ConflictDismissed
	}
	d.invalidate = append(d.invalidate, cand.ID)
	return core.ConflictConfirmed
}

// enrichValidity drops candidates whose valid-time window is already closed.
// A failed lookup fails open: the candidate is assumed still valid.
func (e *Engine) enrichValidity(ctx context.Context, candidates []core.Candidate) []core.Candidate {
	logger := log.FromCtx(ctx)
	now := e.clock()

	valid := candidates[:0]
	for _, cand := range candidates {
		_, vtEnd, err := e.store.MemoryValidity(ctx, cand.ID)
		if err != nil {
			logger.Debug().Err(err).Str("memory", cand.ID).Msg("validity lookup failed, assuming valid")
			valid = append(valid, cand)
			continue
		}
		if vtEnd.Before(now) {
			continue
		}
		valid = append(valid, cand)
	}
	return valid
}

func newConflict(memoryID, otherID string, verdict core.Classification, status core.ConflictStatus, now time.Time) core.Conflict {
	return core.Conflict{
		ID:              core.NewID(),
		MemoryID:        memoryID,
		OtherMemoryID:   otherID,
		Relation:        verdict.Relation,
		Confidence:      verdict.Confidence,
		Reasoning:       verdict.Reasoning,
		SuggestedAction: verdict.SuggestedAction,
		Status:          status,
		ScannedAt:       now,
	}
}

func truncateRaw(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
