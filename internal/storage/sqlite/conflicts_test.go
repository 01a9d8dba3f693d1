package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *ConflictRepo {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewConflictRepo(db)
}

func sampleConflict(id string, status core.ConflictStatus, scannedAt time.Time) *core.Conflict {
	return &core.Conflict{
		ID:              id,
		MemoryID:        "mem-new",
		OtherMemoryID:   "mem-old",
		Relation:        core.RelationSupersedes,
		Confidence:      0.9,
		Reasoning:       "newer statement replaces the old",
		SuggestedAction: core.ActionInvalidateOld,
		Status:          status,
		ScannedAt:       scannedAt,
	}
}

func TestConflictRepo_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	c := sampleConflict("c1", core.ConflictPending, at)
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.MemoryID, got.MemoryID)
	assert.Equal(t, c.OtherMemoryID, got.OtherMemoryID)
	assert.Equal(t, core.RelationSupersedes, got.Relation)
	assert.Equal(t, core.ConflictPending, got.Status)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.True(t, got.ScannedAt.Equal(at))
}

func TestConflictRepo_SaveIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, sampleConflict("c1", core.ConflictPending, at)))

	// A replayed save with different fields must not overwrite the original.
	replay := sampleConflict("c1", core.ConflictDismissed, at)
	replay.Reasoning = "changed"
	require.NoError(t, repo.Save(ctx, replay))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, core.ConflictPending, got.Status)
	assert.Equal(t, "newer statement replaces the old", got.Reasoning)
}

func TestConflictRepo_GetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	require.Error(t, err)
}

func TestConflictRepo_SetStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleConflict("c1", core.ConflictPending, time.Now().UTC())))
	require.NoError(t, repo.SetStatus(ctx, "c1", core.ConflictConfirmed))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, core.ConflictConfirmed, got.Status)

	require.Error(t, repo.SetStatus(ctx, "missing", core.ConflictDismissed))
}

func TestConflictRepo_ListPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sampleConflict("newer", core.ConflictPending, base.Add(time.Hour))))
	require.NoError(t, repo.Save(ctx, sampleConflict("older", core.ConflictPending, base)))
	require.NoError(t, repo.Save(ctx, sampleConflict("done", core.ConflictAutoResolved, base)))

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first.
	assert.Equal(t, "older", pending[0].ID)
	assert.Equal(t, "newer", pending[1].ID)

	limited, err := repo.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
