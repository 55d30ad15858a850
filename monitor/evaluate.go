package monitor

import (
	"sort"
	"time"
)

// Evaluate turns a scan result into a verdict under the given rule config.
// Pure and deterministic: same inputs always produce the same flag, score,
// and hit ordering.
//
// The score is the sum of weights of matched rules which are enabled in the
// config; a hit whose rule is absent from (or disabled in) the config
// contributes nothing, so rules can be rolled out or rolled back without
// re-scanning. Weights come from the config, not from the scan result, so a
// weight change takes effect on the next evaluation.
//
// The comparison against the threshold is inclusive: a score exactly equal
// to the threshold flags the release.
func Evaluate(res *ScanResult, cfg *RuleConfig, now time.Time) *Verdict {
	weights := cfg.enabledWeights()

	score := 0
	hits := make([]RuleHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		w, ok := weights[h.ID]
		if !ok {
			continue
		}
		score += w
		hits = append(hits, RuleHit{
			ID:          h.ID,
			Description: h.Description,
			Weight:      w,
		})
	}

	// descending weight, then rule ID for a stable report ordering
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Weight != hits[j].Weight {
			return hits[i].Weight > hits[j].Weight
		}
		return hits[i].ID < hits[j].ID
	})

	return &Verdict{
		Name:        res.Name,
		Version:     res.Version,
		Flagged:     score >= cfg.Threshold && len(hits) > 0,
		Score:       score,
		Hits:        hits,
		EvaluatedAt: now.UTC(),
	}
}
