// Package dedup tracks which release verdicts have already been reported,
// so a crash-and-replay (or a feed that repeats entries) never produces
// duplicate alerts.
package dedup

import (
	"context"
)

// Tracker is a write-once keyed set. Marking an already-marked key is a
// no-op. Entries may expire after the backend's retention window.
type Tracker interface {
	HasReported(ctx context.Context, key string) (bool, error)
	MarkReported(ctx context.Context, key string) error
}

// Key derives the dedup key for a release identity and its flag outcome.
// The flag is part of the key so that a rule-config change which flips a
// previously clean release to flagged can still alert once.
func Key(name, version string, flagged bool) string {
	k := name + "@" + version
	if flagged {
		return k + "/flagged"
	}
	return k
}
