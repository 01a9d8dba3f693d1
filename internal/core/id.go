package core

import "github.com/oklog/ulid/v2"

// NewID returns a lexicographically sortable unique node id.
func NewID() string {
	return ulid.Make().String()
}
