package ingest

import (
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

// Normalize fills defaults on an inbound raw event so that downstream handlers
// never branch on missing versus empty fields: a non-empty id, a timestamp,
// and a non-nil metadata map. Nested payloads are value structs and therefore
// already zero-valued when absent.
func Normalize(ev *core.Event) {
	if ev.ID == "" {
		ev.ID = core.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
}
