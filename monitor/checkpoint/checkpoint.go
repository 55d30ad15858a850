// Package checkpoint persists the pipeline's position in the release
// timeline. The cursor is opaque to callers: an empty cursor means "no prior
// state, start from now".
package checkpoint

import (
	"context"
	"time"
)

// Cursor marks the boundary between already-processed and not-yet-processed
// releases. It round-trips through the store as an RFC3339 UTC timestamp.
type Cursor string

// FromTime builds a cursor from a release publish time.
func FromTime(t time.Time) Cursor {
	return Cursor(t.UTC().Format(time.RFC3339))
}

// Time parses the cursor back to a timestamp. The zero time is returned for
// an empty cursor.
func (c Cursor) Time() (time.Time, error) {
	if c == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, string(c))
}

type Store interface {
	Load(ctx context.Context) (Cursor, error)
	// Save overwrites the cursor. Callers are responsible for only ever
	// advancing it; the store does not compare values.
	Save(ctx context.Context, c Cursor) error
}
