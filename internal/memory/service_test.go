package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConflictRepo struct {
	mu       sync.Mutex
	saved    map[string]*core.Conflict
	statuses map[string]core.ConflictStatus
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{
		saved:    map[string]*core.Conflict{},
		statuses: map[string]core.ConflictStatus{},
	}
}

func (f *fakeConflictRepo) Save(ctx context.Context, c *core.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.saved[c.ID] = &cp
	return nil
}

func (f *fakeConflictRepo) Get(ctx context.Context, id string) (*core.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.saved[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConflictRepo) SetStatus(ctx context.Context, id string, status core.ConflictStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeConflictRepo) ListPending(ctx context.Context, limit int) ([]core.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Conflict
	for _, c := range f.saved {
		if c.Status == core.ConflictPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func newTestService(store *fakeMemoryStore, search core.CandidateSearcher, cls core.RelationClassifier) (*Service, *fakeConflictRepo) {
	repo := newFakeConflictRepo()
	return NewService(store, NewEngine(store, search, cls), repo), repo
}

func TestRemember_StoresWithOpenWindows(t *testing.T) {
	store := newFakeMemoryStore()
	svc, _ := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	res, err := svc.Remember(context.Background(), RememberRequest{Content: "we use zerolog", Project: "engram"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotEmpty(t, res.MemoryID)

	m := store.memories[res.MemoryID]
	require.NotNil(t, m)
	assert.Equal(t, core.MemoryFact, m.Type)
	assert.Equal(t, core.OpenEnd, m.VTEnd)
	assert.Equal(t, core.OpenEnd, m.TTEnd)
	assert.False(t, m.VTStart.IsZero())
}

func TestRemember_EmptyContentRejected(t *testing.T) {
	store := newFakeMemoryStore()
	svc, _ := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	_, err := svc.Remember(context.Background(), RememberRequest{Content: "   "})
	require.Error(t, err)
	assert.Empty(t, store.memories)
}

func TestRemember_DuplicateShortCircuits(t *testing.T) {
	store, cands := openEndStore("existing")
	svc, repo := newTestService(store, &fakeSearcher{candidates: cands}, &fakeClassifier{
		verdicts: []core.Classification{{Relation: core.RelationDuplicate, Confidence: 0.95}},
	})

	before := len(store.memories)
	res, err := svc.Remember(context.Background(), RememberRequest{Content: "existing fact existing"})
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Equal(t, "existing", res.MemoryID)
	assert.Len(t, store.memories, before)
	// The auto-resolved duplicate record still lands in the audit trail,
	// pointing at the surviving memory rather than the never-created id.
	require.Len(t, repo.saved, 1)
	for _, c := range repo.saved {
		assert.Equal(t, "existing", c.MemoryID)
		assert.Equal(t, "existing", c.OtherMemoryID)
	}
}

func TestRemember_SupersedesInvalidatesOld(t *testing.T) {
	store, cands := openEndStore("old")
	svc, repo := newTestService(store, &fakeSearcher{candidates: cands}, &fakeClassifier{
		verdicts: supersedesVerdict(),
	})

	res, err := svc.Remember(context.Background(), RememberRequest{Content: "updated fact"})
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, res.Invalidated)
	// Soft invalidation: the node still exists, its window is closed.
	old := store.memories["old"]
	require.NotNil(t, old)
	assert.True(t, old.VTEnd.Before(core.OpenEnd))
	require.Len(t, repo.saved, 1)

	// The new memory was written alongside.
	assert.NotNil(t, store.memories[res.MemoryID])
}

func TestRemember_InvalidationIsIdempotent(t *testing.T) {
	store, cands := openEndStore("old")
	svc, _ := newTestService(store, &fakeSearcher{candidates: cands}, &fakeClassifier{
		verdicts: supersedesVerdict(),
	})

	_, err := svc.Remember(context.Background(), RememberRequest{Content: "updated fact v1"})
	require.NoError(t, err)
	closedAt := store.memories["old"].VTEnd

	// The candidate is now closed, so enrichment drops it and nothing is
	// re-invalidated.
	res, err := svc.Remember(context.Background(), RememberRequest{Content: "updated fact v2"})
	require.NoError(t, err)
	assert.Empty(t, res.Invalidated)
	assert.Equal(t, closedAt, store.memories["old"].VTEnd)
}

func TestRecall_FlagsInvalidated(t *testing.T) {
	store := newFakeMemoryStore()
	past := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.add("live", "we deploy on fridays", core.OpenEnd)
	store.add("dead", "we deploy on mondays", past)

	svc, _ := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	items, err := svc.Recall(context.Background(), "", "", false, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "live", items[0].ID)
	assert.False(t, items[0].Invalidated)

	items, err = svc.Recall(context.Background(), "", "", true, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	flags := map[string]bool{}
	for _, it := range items {
		flags[it.ID] = it.Invalidated
	}
	assert.False(t, flags["live"])
	assert.True(t, flags["dead"])
}

func TestRecall_QueryFiltersContentAndTags(t *testing.T) {
	store := newFakeMemoryStore()
	store.add("a", "we use postgres for billing", core.OpenEnd)
	store.add("b", "frontend is react", core.OpenEnd)
	store.memories["b"].Tags = []string{"database"}

	svc, _ := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	items, err := svc.Recall(context.Background(), "DataBase", "", false, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	items, err = svc.Recall(context.Background(), "postgres", "", false, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestContext_GroupsByTypeAndIncludesTurns(t *testing.T) {
	store := newFakeMemoryStore()
	store.add("f1", "fact one", core.OpenEnd)
	store.add("d1", "decision one", core.OpenEnd)
	store.memories["d1"].Type = core.MemoryDecision
	store.turns = []core.Turn{{ID: "t1", SessionID: "s", Sequence: 0}}

	svc, _ := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	pc, err := svc.Context(context.Background(), "s", "proj")
	require.NoError(t, err)
	assert.Len(t, pc.Memories[core.MemoryFact], 1)
	assert.Len(t, pc.Memories[core.MemoryDecision], 1)
	require.Len(t, pc.RecentTurns, 1)
	assert.Equal(t, "t1", pc.RecentTurns[0].ID)
}

func TestDetectConflicts_RecordsPendingWithoutInvalidating(t *testing.T) {
	store := newFakeMemoryStore()
	store.add("a", "deploys happen on fridays", core.OpenEnd)
	store.add("b", "deploys are forbidden on fridays", core.OpenEnd)

	search := &fakeSearcher{candidates: []core.Candidate{
		{ID: "a", Content: "deploys happen on fridays"},
		{ID: "b", Content: "deploys are forbidden on fridays"},
	}}
	cls := &fakeClassifier{verdicts: []core.Classification{
		{Relation: core.RelationContradiction, Confidence: 0.85, SuggestedAction: core.ActionInvalidateOld},
	}}
	svc, repo := newTestService(store, search, cls)

	found, err := svc.DetectConflicts(context.Background(), "proj")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, core.ConflictPending, found[0].Status)

	// The scan only records; both memories stay valid.
	assert.Empty(t, store.invalidated)
	assert.Len(t, repo.saved, 1)

	pending, err := svc.PendingConflicts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestResolve_InvalidateOld(t *testing.T) {
	store := newFakeMemoryStore()
	store.add("old", "old fact", core.OpenEnd)
	svc, repo := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	c := &core.Conflict{ID: "c1", MemoryID: "new", OtherMemoryID: "old", Relation: core.RelationSupersedes, Status: core.ConflictPending}
	require.NoError(t, repo.Save(context.Background(), c))

	require.NoError(t, svc.Resolve(context.Background(), "c1", core.ActionInvalidateOld))
	assert.Contains(t, store.invalidated, "old")
	assert.Equal(t, core.ConflictConfirmed, repo.statuses["c1"])
}

func TestResolve_KeepBoth(t *testing.T) {
	store := newFakeMemoryStore()
	store.add("old", "old fact", core.OpenEnd)
	svc, repo := newTestService(store, &fakeSearcher{}, &fakeClassifier{})

	c := &core.Conflict{ID: "c2", MemoryID: "new", OtherMemoryID: "old", Status: core.ConflictPending}
	require.NoError(t, repo.Save(context.Background(), c))

	require.NoError(t, svc.Resolve(context.Background(), "c2", core.ActionKeepBoth))
	assert.Empty(t, store.invalidated)
	assert.Equal(t, core.ConflictDismissed, repo.statuses["c2"])
}

func TestResolve_UnknownAction(t *testing.T) {
	store := newFakeMemoryStore()
	svc, repo := newTestService(store, &fakeSearcher{}, &fakeClassifier{})
	require.NoError(t, repo.Save(context.Background(), &core.Conflict{ID: "c3"}))

	err := svc.Resolve(context.Background(), "c3", "delete_everything")
	require.Error(t, err)
}

func TestDismiss(t *testing.T) {
	store := newFakeMemoryStore()
	svc, repo := newTestService(store, &fakeSearcher{}, &fakeClassifier{})
	require.NoError(t, repo.Save(context.Background(), &core.Conflict{ID: "c4", Status: core.ConflictPending}))

	require.NoError(t, svc.Dismiss(context.Background(), "c4"))
	assert.Equal(t, core.ConflictDismissed, repo.statuses["c4"])

	require.Error(t, svc.Dismiss(context.Background(), "missing"))
}
