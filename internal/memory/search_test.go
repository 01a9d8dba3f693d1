package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraphStore struct {
	rows    []map[string]any
	err     error
	queries []string
	params  []map[string]any
}

func (f *fakeGraphStore) Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	return f.rows, f.err
}

func (f *fakeGraphStore) Close(ctx context.Context) error { return nil }

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "short words dropped",
			content: "we use the new API now",
			want:    nil,
		},
		{
			name:    "lowercased and deduplicated",
			content: "Postgres replaced POSTGRES with postgres",
			want:    []string{"postgres", "replaced", "with"},
		},
		{
			name:    "punctuation splits words",
			content: "database=postgres,cache=redis",
			want:    []string{"database", "postgres", "cache", "redis"},
		},
		{
			name:    "capped at the keyword limit",
			content: "alpha bravo charlie delta echoes foxtrot golfing hotels india juliet",
			want:    []string{"alpha", "bravo", "charlie", "delta", "echoes", "foxtrot", "golfing", "hotels"},
		},
		{
			name:    "empty content",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractKeywords(tt.content))
		})
	}
}

func TestGraphSearcher_NoKeywordsNoQuery(t *testing.T) {
	store := &fakeGraphStore{}
	s := NewGraphSearcher(store)

	cands, err := s.FindConflictCandidates(context.Background(), "a b c", "proj")
	require.NoError(t, err)
	assert.Nil(t, cands)
	assert.Empty(t, store.queries)
}

func TestGraphSearcher_MapsRows(t *testing.T) {
	vt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeGraphStore{rows: []map[string]any{
		{"id": "m1", "content": "we use postgres", "type": "fact", "score": 0.5, "vt_start": vt},
		{"id": "m2", "content": "redis for caching", "type": "decision", "score": 0.25},
	}}
	s := NewGraphSearcher(store)

	cands, err := s.FindConflictCandidates(context.Background(), "postgres caching decision", "proj")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "m1", cands[0].ID)
	assert.Equal(t, 0.5, cands[0].Score)
	assert.Equal(t, vt, cands[0].VTStart)
	assert.Equal(t, "decision", cands[1].Type)

	require.Len(t, store.params, 1)
	assert.Equal(t, "proj", store.params[0]["project"])
	assert.Equal(t, []string{"postgres", "caching", "decision"}, store.params[0]["keywords"])
}
