package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/kestrelworks/engram/internal/observability"
	"github.com/kestrelworks/engram/pkg/log"
)

// DefaultStaleTurnMaxAge bounds memory growth from abandoned sessions.
const DefaultStaleTurnMaxAge = 30 * time.Minute

type sessionState struct {
	mu sync.Mutex

	id           string
	startedAt    time.Time
	lastActivity time.Time
	metadata     map[string]any

	active  *TurnState
	nextSeq int
}

func (s *sessionState) snapshot() *core.Session {
	meta := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		meta[k] = v
	}
	return &core.Session{
		ID:             s.id,
		StartedAt:      s.startedAt,
		LastActivityAt: s.lastActivity,
		Metadata:       meta,
	}
}

// Aggregator owns per-session turn state and the turn lifecycle. All state is
// private to one instance: two aggregators fed the same session id each start
// sequencing at zero, which makes session-sharded deployment safe without
// coordination.
//
// Per-session event ordering is the caller's responsibility (the stream
// consumer serializes by session); the locks here only protect against the
// concurrent stale-turn sweep.
type Aggregator struct {
	writer    GraphWriter
	registry  *Registry
	publisher core.TurnPublisher
	metrics   *observability.IngestMetrics

	mu       sync.Mutex
	sessions map[string]*sessionState

	clock func() time.Time
}

func NewAggregator(writer GraphWriter, registry *Registry) *Aggregator {
	return &Aggregator{
		writer:   writer,
		registry: registry,
		sessions: make(map[string]*sessionState),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher installs the optional downstream publish hook for finalized
// turns. Publish failures are logged, never propagated.
func (a *Aggregator) SetPublisher(p core.TurnPublisher) {
	a.publisher = p
}

func (a *Aggregator) SetMetrics(m *observability.IngestMetrics) {
	a.metrics = m
}

// ProcessEvent normalizes one raw event, applies the turn lifecycle for its
// session, and dispatches it to every matching handler. Handler failures are
// isolated: they are logged and the event still counts as processed.
func (a *Aggregator) ProcessEvent(ctx context.Context, ev *core.Event, sessionID string) error {
	logger := log.FromCtx(ctx)

	Normalize(ev)
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	ev.SessionID = sessionID

	sess := a.getOrCreateSession(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.lastActivity = a.clock()
	mergeMetadata(sess, ev)

	if err := a.writer.UpsertSession(ctx, sess.snapshot()); err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("session upsert failed")
	}

	switch {
	case ev.Type == core.EventContent && ev.Role == core.RoleUser && ev.Content != "":
		// A user message always opens a fresh turn; any in-flight one is
		// finalized first so sequence order matches creation order.
		a.finalizeLocked(ctx, sess, "turn_start")
		a.openTurn(ctx, sess, ev.Content, ev.Timestamp)

	case sess.active == nil:
		if !hasAnchor(ev) {
			logger.Debug().
				Str("session", sessionID).
				Str("type", string(ev.Type)).
				Msg("dropping event with no active turn to anchor to")
			if a.metrics != nil {
				a.metrics.EventsDropped.Inc()
			}
			return nil
		}
		a.openTurn(ctx, sess, placeholderUserContent, ev.Timestamp)
	}

	finalize := false
	for _, h := range a.registry.Match(ev) {
		res, err := h.Handle(ctx, ev, sess.active)
		if err != nil {
			logger.Error().Err(err).Str("handler", h.Name()).Str("event", ev.ID).Msg("handler failed")
			if a.metrics != nil {
				a.metrics.HandlerErrors.WithLabelValues(h.Name()).Inc()
			}
			continue
		}
		if res.Action == ActionFinalizeTurn {
			finalize = true
		}
	}

	if finalize {
		a.finalizeLocked(ctx, sess, string(ev.Type))
	}

	if a.metrics != nil {
		a.metrics.EventsProcessed.WithLabelValues(string(ev.Type)).Inc()
	}
	return nil
}

// CleanupStaleTurns finalizes and evicts every active turn older than maxAge.
// It is driven by an external timer and tolerates running concurrently with
// live event processing for other sessions. Returns the number of turns swept.
func (a *Aggregator) CleanupStaleTurns(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultStaleTurnMaxAge
	}
	cutoff := a.clock().Add(-maxAge)

	a.mu.Lock()
	states := make([]*sessionState, 0, len(a.sessions))
	for _, s := range a.sessions {
		states = append(states, s)
	}
	a.mu.Unlock()

	swept := 0
	for _, sess := range states {
		sess.mu.Lock()
		if sess.active != nil && sess.active.CreatedAt.Before(cutoff) {
			a.finalizeLocked(ctx, sess, "stale")
			swept++
		}
		sess.mu.Unlock()
	}
	return swept
}

// ClearSession finalizes any in-flight turn and discards all state for the
// session. Subsequent events for the same id start a new session at sequence 0.
func (a *Aggregator) ClearSession(ctx context.Context, sessionID string) {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	if ok {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	a.finalizeLocked(ctx, sess, "clear")
	sess.mu.Unlock()
}

// ActiveSessions reports how many sessions currently hold state.
func (a *Aggregator) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *Aggregator) getOrCreateSession(sessionID string) *sessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sess, ok := a.sessions[sessionID]; ok {
		return sess
	}
	now := a.clock()
	sess := &sessionState{
		id:        sessionID,
		startedAt: now,
		metadata:  map[string]any{},
	}
	a.sessions[sessionID] = sess
	return sess
}

func (a *Aggregator) openTurn(ctx context.Context, sess *sessionState, userContent string, at time.Time) {
	now := a.clock()
	if at.IsZero() {
		at = now
	}

	turn := newTurnState(sess.id, userContent, sess.nextSeq, now)
	sess.nextSeq++
	sess.active = turn

	node := &core.Turn{
		ID:          turn.ID,
		SessionID:   turn.SessionID,
		Sequence:    turn.Sequence,
		UserContent: truncate(userContent, previewLimit),
		VTStart:     at,
		VTEnd:       core.OpenEnd,
		TTStart:     now,
		TTEnd:       core.OpenEnd,
		CreatedAt:   now,
	}
	if err := a.writer.CreateTurn(ctx, node); err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("turn", turn.ID).Msg("turn create failed")
	}
	if a.metrics != nil {
		a.metrics.ActiveTurns.Inc()
	}
}

// finalizeLocked closes the session's active turn at most once. The caller
// holds the session lock.
func (a *Aggregator) finalizeLocked(ctx context.Context, sess *sessionState, reason string) {
	turn := sess.active
	if turn == nil || turn.Finalized {
		return
	}
	turn.Finalized = true
	sess.active = nil

	logger := log.FromCtx(ctx)
	now := a.clock()

	node := turn.snapshot(now)
	if err := a.writer.FinalizeTurn(ctx, node); err != nil {
		logger.Error().Err(err).Str("turn", turn.ID).Msg("turn finalize write failed")
	}

	if a.publisher != nil {
		if err := a.publisher.PublishTurnFinalized(ctx, turn.summary()); err != nil {
			logger.Warn().Err(err).Str("turn", turn.ID).Msg("turn publish failed")
		}
	}

	if a.metrics != nil {
		a.metrics.ActiveTurns.Dec()
		a.metrics.TurnsFinalized.WithLabelValues(reason).Inc()
	}
	logger.Debug().Str("turn", turn.ID).Int("seq", turn.Sequence).Str("reason", reason).Msg("turn finalized")
}

// hasAnchor reports whether the event carries a payload worth opening a
// placeholder turn for.
func hasAnchor(ev *core.Event) bool {
	return ev.Content != "" || ev.Thought != "" || ev.ToolCall.Name != ""
}

func mergeMetadata(sess *sessionState, ev *core.Event) {
	for k, v := range ev.Metadata {
		if k == "signal" {
			continue
		}
		sess.metadata[k] = v
	}
}
