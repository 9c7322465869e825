package partition

import (
	"fmt"
	"sort"
)

// Normalize returns a copy of groups with every group sorted and the groups
// ordered by their first stroke.
func Normalize(groups [][]int) [][]int {
	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		c := append([]int(nil), g...)
		sort.Ints(c)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) == 0 || len(out[j]) == 0 {
			return len(out[i]) < len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// IsOutOfOrder reports whether some symbol's strokes are interleaved with
// another symbol's strokes, i.e. the normalized groups read in order do not
// list strokes in increasing order.
func IsOutOfOrder(groups [][]int) bool {
	last := -1
	for _, g := range Normalize(groups) {
		for _, s := range g {
			if s < last {
				return true
			}
			last = s
		}
	}
	return false
}

// FromGroups converts a grouping of n strokes into a Partition. Groups that
// interleave return ErrNotContiguous; groups that skip or repeat strokes
// return ErrInvalidGroups.
func FromGroups(n int, groups [][]int) (Partition, error) {
	seen := make([]bool, n)
	for _, g := range groups {
		if len(g) == 0 {
			return Partition{}, fmt.Errorf("%w: empty group", ErrInvalidGroups)
		}
		for _, s := range g {
			if s < 0 || s >= n || seen[s] {
				return Partition{}, fmt.Errorf("%w: stroke %d", ErrInvalidGroups, s)
			}
			seen[s] = true
		}
	}
	for s, ok := range seen {
		if !ok {
			return Partition{}, fmt.Errorf("%w: stroke %d not grouped", ErrInvalidGroups, s)
		}
	}
	if IsOutOfOrder(groups) {
		return Partition{}, ErrNotContiguous
	}

	var cuts []int
	for _, g := range Normalize(groups) {
		last := g[len(g)-1]
		if last < n-1 {
			cuts = append(cuts, last)
		}
	}
	return Partition{n: n, cuts: cuts}, nil
}

// HasWrongBreak reports whether the strokes of some true symbol were split
// over several predicted groups (over-segmentation).
func HasWrongBreak(truth, pred [][]int) bool {
	return splits(truth, pred)
}

// HasMissingBreak reports whether some predicted group mixes strokes of
// different true symbols (under-segmentation).
func HasMissingBreak(truth, pred [][]int) bool {
	return splits(pred, truth)
}

// splits reports whether some group of a is not contained in the group of b
// holding a's first stroke.
func splits(a, b [][]int) bool {
	owner := make(map[int]int)
	for i, g := range b {
		for _, s := range g {
			owner[s] = i
		}
	}
	for _, g := range a {
		if len(g) == 0 {
			continue
		}
		home, ok := owner[g[0]]
		if !ok {
			return true
		}
		for _, s := range g[1:] {
			if o, ok := owner[s]; !ok || o != home {
				return true
			}
		}
	}
	return false
}
