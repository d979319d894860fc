package assemble

// Resolver answers best-fit speaker queries against a normalized set of
// diarization turns. It is built once per assembly invocation and holds no
// state beyond the turns and their grid index.
type Resolver struct {
	turns []Turn
	index turnIndex
}

// NewResolver indexes the given turns. The slice must already be normalized
// (see NormalizeTurns); the resolver does not re-validate it.
func NewResolver(turns []Turn) *Resolver {
	return &Resolver{turns: turns, index: buildTurnIndex(turns)}
}

// Resolve returns the label of the turn with the largest overlap with
// [start, end). A degenerate interval (end <= start) resolves to nothing.
//
// Ties keep the earliest turn in (start, end) order: a later candidate must
// strictly beat the current best overlap to replace it. When no turn truly
// overlaps, a turn containing the interval's midpoint wins; failing that, the
// second return is false and the caller applies its own fallback policy.
func (r *Resolver) Resolve(start, end float64) (string, bool) {
	if end <= start {
		return "", false
	}

	first, last := cellRange(start, end)

	bestLabel := ""
	bestOverlap := 0.0
	seen := make(map[int]struct{})

	for cell := first; cell <= last; cell++ {
		for _, i := range r.index[cell] {
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}

			t := r.turns[i]
			overlapStart := max(start, t.Start)
			overlapEnd := min(end, t.End)
			if overlapEnd <= overlapStart {
				continue
			}
			if d := overlapEnd - overlapStart; d > bestOverlap {
				bestOverlap = d
				bestLabel = t.Label
			}
		}
	}

	if bestOverlap > 0 {
		return bestLabel, true
	}
	return r.resolveMidpoint((start + end) / 2)
}

// resolveMidpoint returns the first turn (in sorted order) whose [Start, End)
// contains the given instant.
func (r *Resolver) resolveMidpoint(mid float64) (string, bool) {
	cell, _ := cellRange(mid, mid+queryEpsilon)
	for _, i := range r.index[cell] {
		t := r.turns[i]
		if t.Start <= mid && mid < t.End {
			return t.Label, true
		}
	}
	return "", false
}
