package core

import "time"

type MemoryType string

const (
	MemoryDecision   MemoryType = "decision"
	MemoryPreference MemoryType = "preference"
	MemoryInsight    MemoryType = "insight"
	MemoryFact       MemoryType = "fact"
	MemoryContext    MemoryType = "context"
)

// Memory is a long-term fact with a bitemporal window. Superseded memories are
// never deleted; their valid-time window is closed instead.
type Memory struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Type    MemoryType `json:"type"`
	Tags    []string   `json:"tags,omitempty"`
	Project string     `json:"project,omitempty"`
	Source  string     `json:"source,omitempty"`
	VTStart time.Time  `json:"vt_start"`
	VTEnd   time.Time  `json:"vt_end"`
	TTStart time.Time  `json:"tt_start"`
	TTEnd   time.Time  `json:"tt_end"`
}

// Invalidated reports whether the memory's valid-time window has been closed
// relative to now.
func (m Memory) Invalidated(now time.Time) bool {
	return m.VTEnd.Before(now)
}

// Candidate is a similar existing memory returned by the candidate search.
type Candidate struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	Type    string    `json:"type"`
	Score   float64   `json:"score"`
	VTStart time.Time `json:"vt_start"`
}

type Relation string

const (
	RelationSupersedes    Relation = "supersedes"
	RelationContradiction Relation = "contradiction"
	RelationDuplicate     Relation = "duplicate"
	RelationAugments      Relation = "augments"
	RelationIndependent   Relation = "independent"
)

// Suggested actions a classifier may attach to a relation.
const (
	ActionInvalidateOld = "invalidate_old"
	ActionKeepBoth      = "keep_both"
	ActionSkipNew       = "skip_new"
)

// Classification is one classifier verdict for a new-content/candidate pair.
// Raw carries the unparsed model output when structured parsing failed, so a
// caller can surface the original text instead of dropping it.
type Classification struct {
	Relation        Relation `json:"relation"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	SuggestedAction string   `json:"suggested_action"`
	Raw             string   `json:"-"`
}

type ConflictStatus string

const (
	ConflictPending      ConflictStatus = "pending_review"
	ConflictConfirmed    ConflictStatus = "confirmed"
	ConflictDismissed    ConflictStatus = "dismissed"
	ConflictAutoResolved ConflictStatus = "auto_resolved"
)

// Conflict is the audit record for a flagged non-independent relation between
// a new memory and an existing one.
type Conflict struct {
	ID              string         `json:"id"`
	MemoryID        string         `json:"memory_id"`
	OtherMemoryID   string         `json:"other_memory_id"`
	Relation        Relation       `json:"relation"`
	Confidence      float64        `json:"confidence"`
	Reasoning       string         `json:"reasoning"`
	SuggestedAction string         `json:"suggested_action"`
	Status          ConflictStatus `json:"status"`
	ScannedAt       time.Time      `json:"scanned_at"`
}
