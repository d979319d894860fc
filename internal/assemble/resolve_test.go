package assemble

import "testing"

func turns(ts ...Turn) []Turn { return ts }

func TestResolve_FullOverlapBeatsNone(t *testing.T) {
	r := NewResolver(turns(
		Turn{Start: 0, End: 5, Label: "A"},
		Turn{Start: 5, End: 10, Label: "B"},
	))

	// A overlaps (0,5) by 5.0s; B by 0.
	label, ok := r.Resolve(0, 5)
	if !ok {
		t.Fatal("expected a label")
	}
	if label != "A" {
		t.Errorf("label = %q, want A", label)
	}
}

func TestResolve_TieKeepsFirstInSortOrder(t *testing.T) {
	r := NewResolver(turns(
		Turn{Start: 0, End: 5, Label: "A"},
		Turn{Start: 4, End: 10, Label: "B"},
	))

	// Query (3,6): both overlap by exactly 2.0s. The earlier turn in
	// (start, end) order wins the tie.
	label, ok := r.Resolve(3, 6)
	if !ok {
		t.Fatal("expected a label")
	}
	if label != "A" {
		t.Errorf("label = %q, want A (first-seen tie-break)", label)
	}
}

func TestResolve_LargestOverlapWins(t *testing.T) {
	r := NewResolver(turns(
		Turn{Start: 0, End: 4, Label: "A"},
		Turn{Start: 4, End: 10, Label: "B"},
	))

	// Query (3,6): A overlaps 1.0s, B overlaps 2.0s.
	label, _ := r.Resolve(3, 6)
	if label != "B" {
		t.Errorf("label = %q, want B", label)
	}
}

func TestResolve_DegenerateInterval(t *testing.T) {
	r := NewResolver(turns(Turn{Start: 0, End: 10, Label: "A"}))

	if _, ok := r.Resolve(5, 5); ok {
		t.Error("degenerate interval should not resolve")
	}
	if _, ok := r.Resolve(6, 5); ok {
		t.Error("inverted interval should not resolve")
	}
}

func TestResolve_NoOverlapAnywhere(t *testing.T) {
	r := NewResolver(turns(Turn{Start: 0, End: 1, Label: "A"}))

	if label, ok := r.Resolve(50, 51); ok {
		t.Errorf("expected no label, got %q", label)
	}
}

func TestResolve_EmptyTurns(t *testing.T) {
	r := NewResolver(nil)
	if _, ok := r.Resolve(0, 1); ok {
		t.Error("empty turn set should never resolve")
	}
}

func TestResolve_MultiCellTurnCountedOnce(t *testing.T) {
	// A turn spanning several grid cells is registered in each; a query
	// spanning those cells must still see one candidate with one overlap.
	r := NewResolver(turns(
		Turn{Start: 0, End: 9, Label: "A"},
		Turn{Start: 8, End: 14, Label: "B"},
	))

	// Query (1,8): A overlaps 7.0s across four cells, B nothing.
	label, _ := r.Resolve(1, 8)
	if label != "A" {
		t.Errorf("label = %q, want A", label)
	}
}

func TestResolve_BoundaryQueryExcludesNextCell(t *testing.T) {
	// Interval ending exactly on a cell boundary must not pull in a turn
	// that only starts there.
	r := NewResolver(turns(Turn{Start: 4, End: 6, Label: "B"}))

	if label, ok := r.Resolve(2, 4); ok {
		t.Errorf("query ending at 4.0 resolved %q, want none", label)
	}
}

func TestResolve_IndexMatchesLinearScan(t *testing.T) {
	// The grid index is an acceleration structure; it must agree with the
	// obvious O(n) overlap scan.
	ts := turns(
		Turn{Start: 0, End: 2.5, Label: "A"},
		Turn{Start: 2.0, End: 7.0, Label: "B"},
		Turn{Start: 6.5, End: 9.0, Label: "C"},
		Turn{Start: 11.0, End: 30.0, Label: "D"},
	)
	r := NewResolver(ts)

	queries := [][2]float64{{0, 1}, {1.9, 2.6}, {2.4, 6.9}, {8.9, 11.1}, {12, 29}, {30, 31}}
	for _, q := range queries {
		want, wantOK := linearResolve(ts, q[0], q[1])
		got, gotOK := r.Resolve(q[0], q[1])
		if got != want || gotOK != wantOK {
			t.Errorf("Resolve(%v, %v) = %q,%t; linear scan says %q,%t", q[0], q[1], got, gotOK, want, wantOK)
		}
	}
}

func linearResolve(ts []Turn, start, end float64) (string, bool) {
	if end <= start {
		return "", false
	}
	best, bestOverlap := "", 0.0
	for _, t := range ts {
		o := min(end, t.End) - max(start, t.Start)
		if o > bestOverlap {
			bestOverlap = o
			best = t.Label
		}
	}
	if bestOverlap > 0 {
		return best, true
	}
	mid := (start + end) / 2
	for _, t := range ts {
		if t.Start <= mid && mid < t.End {
			return t.Label, true
		}
	}
	return "", false
}
