package nodes

import (
	"fmt"
	"sort"
)

// overlapToleranceMs absorbs timestamp imprecision in dead-reckoned
// times: block durations and sibling sums disagree by fractions of a
// second in practice, so near-misses up to a second are not violations.
const overlapToleranceMs = 1000

// OverlapError reports two raw intervals of one node that partially
// overlap beyond tolerance. Raw intervals must be disjoint or properly
// nested; a partial overlap means corrupt upstream data or a coalescing
// defect, and normalization refuses to guess.
type OverlapError struct {
	Node string
	A, B Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("node %s: intervals [%g, %g) %s and [%g, %g) %s partially overlap",
		e.Node, e.A.StartMs, e.A.EndMs, e.A.Mode, e.B.StartMs, e.B.EndMs, e.B.Mode)
}

// Normalize rewrites every node's interval set as a sorted,
// non-overlapping timeline that covers [0, lastEnd] without gaps:
// explicit NotRunning segments fill idle time, nested intervals split
// their containers, zero-length pieces are dropped, and adjacent
// same-mode intervals are merged. It fails with an *OverlapError if any
// two raw intervals partially overlap.
func (f *Forest) Normalize() error {
	for i := range f.nodes {
		n := &f.nodes[i]
		ivs, err := normalize(n.Label(), n.Intervals)
		if err != nil {
			return err
		}
		n.Intervals = ivs
	}
	return nil
}

func normalize(label string, ivs []Interval) ([]Interval, error) {
	// For any pair sorted by start, the earlier interval must either end
	// before the later starts or run at least to the later's end:
	// disjoint or nested, never partially overlapping.
	for _, x := range ivs {
		for _, y := range ivs {
			if x.StartMs >= y.StartMs {
				continue
			}
			if x.EndMs-overlapToleranceMs <= y.StartMs || x.EndMs+overlapToleranceMs >= y.EndMs {
				continue
			}
			return nil, &OverlapError{Node: label, A: x, B: y}
		}
	}
	if len(ivs) == 0 {
		return ivs, nil
	}

	// Containers first: start ascending, end descending, so anything
	// nested lands after the interval that holds it.
	sorted := make([]Interval, len(ivs))
	copy(sorted, ivs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartMs != sorted[j].StartMs {
			return sorted[i].StartMs < sorted[j].StartMs
		}
		return sorted[i].EndMs > sorted[j].EndMs
	})

	// Quadratic insertion is fine here; nodes carry few intervals.
	var out []Interval
	for _, iv := range sorted {
		lastEnd := 0.0
		if len(out) > 0 {
			lastEnd = out[len(out)-1].EndMs
		}
		if iv.StartMs >= lastEnd {
			out = appendNonZero(out, Interval{StartMs: lastEnd, EndMs: iv.StartMs, Mode: NotRunning})
			out = appendNonZero(out, iv)
			continue
		}
		// Nested: split the rightmost placed interval that starts at or
		// before the candidate into up to three pieces.
		i := len(out) - 1
		for i > 0 && out[i].StartMs > iv.StartMs {
			i--
		}
		old := out[i]
		var repl []Interval
		repl = appendNonZero(repl, Interval{StartMs: old.StartMs, EndMs: iv.StartMs, Mode: old.Mode})
		repl = appendNonZero(repl, iv)
		repl = appendNonZero(repl, Interval{StartMs: iv.EndMs, EndMs: old.EndMs, Mode: old.Mode})
		out = append(out[:i], append(repl, out[i+1:]...)...)
	}
	if len(out) == 0 {
		return nil, nil
	}

	merged := []Interval{out[0]}
	for _, iv := range out[1:] {
		last := &merged[len(merged)-1]
		if last.Mode == iv.Mode && last.EndMs == iv.StartMs {
			last.EndMs = iv.EndMs
		} else {
			merged = append(merged, iv)
		}
	}
	return merged, nil
}

func appendNonZero(ivs []Interval, iv Interval) []Interval {
	if iv.StartMs < iv.EndMs {
		return append(ivs, iv)
	}
	return ivs
}
