package core

import "context"

// GraphStore is the declarative graph-pattern query boundary. All writes made
// through it are idempotent-safe upserts or property sets; no transaction
// spans multiple calls.
type GraphStore interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// CandidateSearcher finds existing memories semantically related to new
// content. The pairing/threshold policy is pluggable and owned by the
// implementation.
type CandidateSearcher interface {
	FindConflictCandidates(ctx context.Context, content, project string) ([]Candidate, error)
}

// RelationClassifier classifies the relation between new content and each
// candidate. Implementations parse model output defensively; a total parse
// failure is returned as an error, not a zero verdict.
type RelationClassifier interface {
	Classify(ctx context.Context, newContent string, candidates []Candidate) ([]Classification, error)
}

// ConfirmResult is the outcome of an interactive confirmation request.
type ConfirmResult struct {
	Accepted bool
	Content  map[string]any
}

// Confirmer is the optional interactive confirmation channel. Availability is
// negotiated per connection; Available must be cheap after the first call.
type Confirmer interface {
	Available(ctx context.Context) bool
	Confirm(ctx context.Context, message string, schema map[string]any) (ConfirmResult, error)
}

// TurnPublisher receives finalized-turn summaries for external indexing.
// Fire-and-forget: failures are logged by the caller, never propagated.
type TurnPublisher interface {
	PublishTurnFinalized(ctx context.Context, summary TurnSummary) error
}

// AIProvider is a chat-completion backend used by the relation classifier.
type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}
