package assemble

import "math"

// cellWidth is the duration in seconds of each time-grid cell used to index
// turns. Turn counts and word counts both grow with recording length, so a
// naive per-word scan over all turns is quadratic in duration; the grid keeps
// each lookup to the handful of turns near the queried interval.
const cellWidth = 2.0

// queryEpsilon keeps a half-open query interval ending exactly on a cell
// boundary from spuriously including the next cell.
const queryEpsilon = 1e-9

// turnIndex maps a grid cell to the indices (into the normalized turn slice)
// of turns overlapping that cell. A turn spanning multiple cells is registered
// once per cell, so queries deduplicate by index.
type turnIndex map[int][]int

func buildTurnIndex(turns []Turn) turnIndex {
	idx := make(turnIndex)
	for i, t := range turns {
		first := int(math.Floor(t.Start / cellWidth))
		last := int(math.Ceil(t.End/cellWidth)) - 1
		for cell := first; cell <= last; cell++ {
			idx[cell] = append(idx[cell], i)
		}
	}
	return idx
}

// cellRange returns the inclusive cell range covering [start, end).
func cellRange(start, end float64) (int, int) {
	first := int(math.Floor(start / cellWidth))
	last := int(math.Floor((end - queryEpsilon) / cellWidth))
	return first, last
}
