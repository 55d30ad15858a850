package monitor

import (
	"time"
)

// Release is a single published version of a package, as reported by the
// package index feed. Identity is (Name, Version); the struct is never
// mutated after the feed produces it.
type Release struct {
	Name        string
	Version     string
	PublishedAt time.Time
	// ArtifactURL points at the uploaded distribution to be scanned
	ArtifactURL string
	// project and inspector pages, used in reports
	PackageURL   string
	InspectorURL string
}

// Key returns the canonical identity string for the release, used for
// logging and as the basis of dedup keys.
func (r *Release) Key() string {
	return r.Name + "@" + r.Version
}

// RuleHit is a single matched detection rule from a scan.
type RuleHit struct {
	ID          string
	Description string
	Weight      int
}

// ScanResult is the outcome of one successful scan of a release. Partial
// results are never constructed: a failed scan produces an error, not a
// ScanResult.
type ScanResult struct {
	Name    string
	Version string
	Hits    []RuleHit
	// aggregate score as computed by the scan service; the evaluator
	// recomputes its own score from configured rule weights
	Score int
}

// Verdict is the flag decision for one release, derived deterministically
// from a ScanResult and the active rule configuration.
type Verdict struct {
	Name        string
	Version     string
	Flagged     bool
	Score       int
	Hits        []RuleHit
	EvaluatedAt time.Time

	PackageURL   string
	InspectorURL string
}

func (v *Verdict) Key() string {
	return v.Name + "@" + v.Version
}
