package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kestrelworks/engram/internal/core"
)

// UnparsedError carries the raw classifier output when every parsing stage
// failed, so a caller can surface the original text to a human instead of
// silently dropping it.
type UnparsedError struct {
	Raw string
}

func (e *UnparsedError) Error() string {
	return fmt.Sprintf("classifier output unparseable (%d bytes)", len(e.Raw))
}

// LLMClassifier implements core.RelationClassifier over a chat provider.
// Model output is free text, not a contract, so parsing is staged: direct
// parse, fenced code block, outermost bracket pair.
type LLMClassifier struct {
	ai core.AIProvider
}

func NewLLMClassifier(ai core.AIProvider) *LLMClassifier {
	return &LLMClassifier{ai: ai}
}

func (c *LLMClassifier) Classify(ctx context.Context, newContent string, candidates []core.Candidate) ([]core.Classification, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	resp, err := c.ai.Chat(ctx, []core.Message{
		{Role: core.RoleSystem, Content: "You are a memory relationship classifier. Output only valid JSON."},
		{Role: core.RoleUser, Content: buildClassifyPrompt(newContent, candidates)},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier chat: %w", err)
	}

	verdicts, err := parseClassifierOutput(resp.Content)
	if err != nil {
		return nil, err
	}

	return alignVerdicts(verdicts, candidates, resp.Content), nil
}

func buildClassifyPrompt(newContent string, candidates []core.Candidate) string {
	var b strings.Builder
	b.WriteString("Classify the relationship between the NEW statement and each EXISTING memory.\n")
	b.WriteString("Relations: supersedes (new replaces old), contradiction (they cannot both hold), ")
	b.WriteString("duplicate (same information), augments (new adds detail), independent (unrelated).\n")
	b.WriteString("Output: a JSON array, one object per existing memory, in the given order: ")
	b.WriteString(`{"relation": "...", "confidence": 0.0-1.0, "reasoning": "...", "suggested_action": "invalidate_old"|"keep_both"|"skip_new"}` + "\n\n")
	b.WriteString("NEW: " + newContent + "\n\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "EXISTING %d: %s\n", i+1, cand.Content)
	}
	return b.String()
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

func parseClassifierOutput(content string) ([]core.Classification, error) {
	trimmed := strings.TrimSpace(content)

	// Stage 1: the whole response is the document.
	if verdicts, ok := tryParse(trimmed); ok {
		return verdicts, nil
	}

	// Stage 2: a fenced code block.
	if m := fencedBlockPattern.FindStringSubmatch(trimmed); len(m) == 2 {
		if verdicts, ok := tryParse(strings.TrimSpace(m[1])); ok {
			return verdicts, nil
		}
	}

	// Stage 3: the outermost bracket pair.
	if sub := outermost(trimmed, '[', ']'); sub != "" {
		if verdicts, ok := tryParse(sub); ok {
			return verdicts, nil
		}
	}
	if sub := outermost(trimmed, '{', '}'); sub != "" {
		if verdicts, ok := tryParse(sub); ok {
			return verdicts, nil
		}
	}

	return nil, &UnparsedError{Raw: content}
}

func tryParse(s string) ([]core.Classification, bool) {
	if s == "" {
		return nil, false
	}
	var verdicts []core.Classification
	if err := json.Unmarshal([]byte(s), &verdicts); err == nil {
		return verdicts, true
	}
	var single core.Classification
	if err := json.Unmarshal([]byte(s), &single); err == nil && single.Relation != "" {
		return []core.Classification{single}, true
	}
	return nil, false
}

func outermost(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// alignVerdicts normalizes verdicts and pads or trims them to one per
// candidate; a missing verdict defaults to independent.
func alignVerdicts(verdicts []core.Classification, candidates []core.Candidate, raw string) []core.Classification {
	aligned := make([]core.Classification, len(candidates))
	for i := range aligned {
		if i < len(verdicts) {
			aligned[i] = normalizeVerdict(verdicts[i])
		} else {
			aligned[i] = core.Classification{Relation: core.RelationIndependent}
		}
		aligned[i].Raw = raw
	}
	return aligned
}

func normalizeVerdict(v core.Classification) core.Classification {
	switch core.Relation(strings.ToLower(string(v.Relation))) {
	case core.RelationSupersedes:
		v.Relation = core.RelationSupersedes
	case core.RelationContradiction:
		v.Relation = core.RelationContradiction
	case core.RelationDuplicate:
		v.Relation = core.RelationDuplicate
	case core.RelationAugments:
		v.Relation = core.RelationAugments
	default:
		v.Relation = core.RelationIndependent
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}
