package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

const (
	candidateLimit  = 8
	keywordLimit    = 8
	minKeywordRunes = 4
)

// GraphSearcher is the bundled candidate-search policy: keyword overlap over
// still-valid memories scoped to the project. The pairing/threshold logic sits
// behind CandidateSearcher so a vector search can replace it without touching
// the conflict engine.
type GraphSearcher struct {
	store core.GraphStore
	clock func() time.Time
}

func NewGraphSearcher(store core.GraphStore) *GraphSearcher {
	return &GraphSearcher{
		store: store,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (s *GraphSearcher) FindConflictCandidates(ctx context.Context, content, project string) ([]core.Candidate, error) {
	keywords := extractKeywords(content)
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := s.store.Execute(ctx, `
		MATCH (m:Memory)
		WHERE ($project = '' OR m.project = $project) AND m.vt_end >= $now
		WITH m, [kw IN $keywords WHERE toLower(m.content) CONTAINS kw] AS hits
		WHERE size(hits) > 0
		RETURN m.id AS id, m.content AS content, m.type AS type,
		       m.vt_start AS vt_start,
		       toFloat(size(hits)) / $total AS score
		ORDER BY score DESC
		LIMIT $limit`,
		map[string]any{
			"project":  project,
			"now":      s.clock(),
			"keywords": keywords,
			"total":    float64(len(keywords)),
			"limit":    candidateLimit,
		})
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}

	candidates := make([]core.Candidate, 0, len(rows))
	for _, row := range rows {
		c := core.Candidate{}
		c.ID, _ = row["id"].(string)
		c.Content, _ = row["content"].(string)
		c.Type, _ = row["type"].(string)
		c.Score, _ = row["score"].(float64)
		c.VTStart, _ = row["vt_start"].(time.Time)
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func extractKeywords(content string) []string {
	seen := map[string]struct{}{}
	var keywords []string
	for _, word := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len([]rune(word)) < minKeywordRunes {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == keywordLimit {
			break
		}
	}
	return keywords
}
