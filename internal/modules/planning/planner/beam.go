package planner

import (
	"sort"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// ScoredSequence pairs a sequence with its evaluation result inside the beam.
type ScoredSequence struct {
	Sequence domain.ActionSequence
	Result   domain.EvaluationResult
}

// GlobalBeam holds the best sequences seen so far across all merged batches.
// Single-objective mode keeps the top-K by end-state score; multi-objective
// mode maintains a Pareto front on (end-state, diversification, risk,
// -cost) and truncates to the top-K by end-state when the front overflows.
type GlobalBeam struct {
	width          int
	multiObjective bool
	entries        []ScoredSequence
	seen           map[string]bool
}

// NewGlobalBeam creates a beam of the given width. Width is clamped to at
// least 1.
func NewGlobalBeam(width int, multiObjective bool) *GlobalBeam {
	if width < 1 {
		width = 1
	}
	return &GlobalBeam{
		width:          width,
		multiObjective: multiObjective,
		seen:           make(map[string]bool),
	}
}

// MergeResult reports what a merge changed, for early-termination decisions.
type MergeResult struct {
	Inserted     int     // entries newly accepted into the beam
	BestImproved bool    // whether the best end-state score strictly improved
	BestScore    float64 // best end-state score after the merge
}

// Merge folds a batch's evaluation output into the beam. Infeasible results
// and duplicates of already-held sequences are ignored. The beam after the
// merge depends only on the beam before it and this batch's results.
func (b *GlobalBeam) Merge(batch []ScoredSequence) MergeResult {
	prevBest := b.BestScore()

	inserted := 0
	for _, candidate := range batch {
		if !candidate.Result.Feasible {
			continue
		}
		hash := candidate.Sequence.SequenceHash
		if hash != "" && b.seen[hash] {
			continue
		}

		if b.multiObjective {
			if b.mergePareto(candidate) {
				inserted++
				if hash != "" {
					b.seen[hash] = true
				}
			}
			continue
		}

		if b.mergeTopK(candidate) {
			inserted++
			if hash != "" {
				b.seen[hash] = true
			}
		}
	}

	b.sortAndTruncate()

	best := b.BestScore()
	return MergeResult{
		Inserted:     inserted,
		BestImproved: best > prevBest,
		BestScore:    best,
	}
}

// mergeTopK accepts the candidate if the beam has room or the candidate
// beats the current worst entry.
func (b *GlobalBeam) mergeTopK(candidate ScoredSequence) bool {
	if len(b.entries) < b.width {
		b.entries = append(b.entries, candidate)
		return true
	}

	worstIdx := 0
	for i := 1; i < len(b.entries); i++ {
		if b.entries[i].Result.EndScore < b.entries[worstIdx].Result.EndScore {
			worstIdx = i
		}
	}
	if candidate.Result.EndScore > b.entries[worstIdx].Result.EndScore {
		delete(b.seen, b.entries[worstIdx].Sequence.SequenceHash)
		b.entries[worstIdx] = candidate
		return true
	}
	return false
}

// mergePareto accepts the candidate unless an existing entry dominates it,
// evicting entries the candidate dominates.
func (b *GlobalBeam) mergePareto(candidate ScoredSequence) bool {
	for _, existing := range b.entries {
		if dominates(existing.Result, candidate.Result) {
			return false
		}
	}

	kept := b.entries[:0]
	for _, existing := range b.entries {
		if dominates(candidate.Result, existing.Result) {
			delete(b.seen, existing.Sequence.SequenceHash)
			continue
		}
		kept = append(kept, existing)
	}
	b.entries = append(kept, candidate)
	return true
}

// dominates reports whether a is at least as good as b on every objective
// and strictly better on at least one. Objectives: end-state score,
// diversification, risk (all maximised) and total cost (minimised).
func dominates(a, b domain.EvaluationResult) bool {
	atLeast := a.EndScore >= b.EndScore &&
		a.DiversificationScore >= b.DiversificationScore &&
		a.RiskScore >= b.RiskScore &&
		a.TotalCost <= b.TotalCost
	strictly := a.EndScore > b.EndScore ||
		a.DiversificationScore > b.DiversificationScore ||
		a.RiskScore > b.RiskScore ||
		a.TotalCost < b.TotalCost
	return atLeast && strictly
}

// sortAndTruncate keeps the entries sorted by end-state score descending
// (sequence hash as tie-breaker for determinism) and bounded at width.
func (b *GlobalBeam) sortAndTruncate() {
	sort.SliceStable(b.entries, func(i, j int) bool {
		if b.entries[i].Result.EndScore != b.entries[j].Result.EndScore {
			return b.entries[i].Result.EndScore > b.entries[j].Result.EndScore
		}
		return b.entries[i].Sequence.SequenceHash < b.entries[j].Sequence.SequenceHash
	})
	if len(b.entries) > b.width {
		for _, evicted := range b.entries[b.width:] {
			delete(b.seen, evicted.Sequence.SequenceHash)
		}
		b.entries = b.entries[:b.width]
	}
}

// Entries returns the beam's contents, best first.
func (b *GlobalBeam) Entries() []ScoredSequence {
	out := make([]ScoredSequence, len(b.entries))
	copy(out, b.entries)
	return out
}

// Best returns the top entry, or ok=false for an empty beam.
func (b *GlobalBeam) Best() (ScoredSequence, bool) {
	if len(b.entries) == 0 {
		return ScoredSequence{}, false
	}
	return b.entries[0], true
}

// BestScore returns the best end-state score, or 0 for an empty beam.
func (b *GlobalBeam) BestScore() float64 {
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[0].Result.EndScore
}

// Len returns the number of entries currently held.
func (b *GlobalBeam) Len() int {
	return len(b.entries)
}
