// Package partition enumerates the ways a temporally ordered stroke sequence
// can be cut into contiguous symbol groups, best first.
//
// A recording with n strokes has n-1 boundaries. Each boundary carries the
// probability that its two neighbouring strokes belong to the same symbol. A
// Partition decides "cut" or "no cut" at every boundary; its structural score
// is the product over boundaries of p (no cut) or 1-p (cut). Scores are kept
// as sums of natural logarithms.
package partition

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrBoundaryCount indicates a boundary slice whose length is not n-1.
	ErrBoundaryCount = errors.New("partition: boundary count does not match stroke count")

	// ErrInvalidLimit indicates a non-positive hypothesis limit.
	ErrInvalidLimit = errors.New("partition: limit must be positive")

	// ErrNotContiguous indicates groups that cannot be expressed as cuts
	// between consecutive strokes.
	ErrNotContiguous = errors.New("partition: groups are not contiguous")

	// ErrInvalidGroups indicates groups that do not cover every stroke exactly once.
	ErrInvalidGroups = errors.New("partition: groups do not partition the strokes")
)

// Boundary is the gap between two consecutive strokes.
type Boundary struct {
	// Probability that the neighbouring strokes belong to the same symbol.
	Probability float64
	// Forced disallows a cut here.
	Forced bool
}

// Group is a half-open range [Start, End) of stroke indices.
type Group struct {
	Start, End int
}

// Len returns the number of strokes in the group.
func (g Group) Len() int { return g.End - g.Start }

// Indices returns the stroke indices of the group.
func (g Group) Indices() []int {
	idx := make([]int, 0, g.Len())
	for i := g.Start; i < g.End; i++ {
		idx = append(idx, i)
	}
	return idx
}

// Partition is one segmentation hypothesis. It is an immutable value.
type Partition struct {
	n        int
	cuts     []int
	logScore float64
}

// FromCuts builds a partition of n strokes that cuts after each listed
// boundary. Cuts must be strictly increasing boundary indices in [0, n-1).
// The structural score is left at zero (probability one); use Rescore to
// attach a score.
func FromCuts(n int, cuts []int) (Partition, error) {
	if n < 0 {
		return Partition{}, fmt.Errorf("%w: %d strokes", ErrInvalidGroups, n)
	}
	prev := -1
	for _, c := range cuts {
		if c <= prev || c >= n-1 {
			return Partition{}, fmt.Errorf("%w: cut %d", ErrInvalidGroups, c)
		}
		prev = c
	}
	return Partition{n: n, cuts: append([]int(nil), cuts...)}, nil
}

// Len returns the number of strokes covered.
func (p Partition) Len() int { return p.n }

// Cuts returns the boundary indices where the partition cuts.
func (p Partition) Cuts() []int { return append([]int(nil), p.cuts...) }

// NumGroups returns the number of symbol groups.
func (p Partition) NumGroups() int {
	if p.n == 0 {
		return 0
	}
	return len(p.cuts) + 1
}

// Groups returns the symbol groups in stroke order.
func (p Partition) Groups() []Group {
	if p.n == 0 {
		return nil
	}
	groups := make([]Group, 0, len(p.cuts)+1)
	start := 0
	for _, c := range p.cuts {
		groups = append(groups, Group{Start: start, End: c + 1})
		start = c + 1
	}
	return append(groups, Group{Start: start, End: p.n})
}

// Indices returns the groups as stroke index lists.
func (p Partition) Indices() [][]int {
	groups := p.Groups()
	out := make([][]int, len(groups))
	for i, g := range groups {
		out[i] = g.Indices()
	}
	return out
}

// LogScore returns the natural logarithm of the structural score.
func (p Partition) LogScore() float64 { return p.logScore }

// Score returns the structural score in (0, 1].
func (p Partition) Score() float64 { return math.Exp(p.logScore) }

// Rescore returns a copy of p with its structural score recomputed from
// boundaries.
func (p Partition) Rescore(boundaries []Boundary) (Partition, error) {
	s, err := Score(boundaries, p)
	if err != nil {
		return Partition{}, err
	}
	p.logScore = s
	return p, nil
}

// Equal reports whether both partitions group the same strokes the same way.
// Scores are ignored.
func (p Partition) Equal(o Partition) bool {
	if p.n != o.n || len(p.cuts) != len(o.cuts) {
		return false
	}
	for i := range p.cuts {
		if p.cuts[i] != o.cuts[i] {
			return false
		}
	}
	return true
}

// Key returns a string that identifies the group structure.
func (p Partition) Key() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(p.n))
	sb.WriteByte(':')
	for i, c := range p.cuts {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

// String formats the groups, e.g. [[0 1] [2]].
func (p Partition) String() string {
	return fmt.Sprint(p.Indices())
}

// Score computes the structural log score of p under boundaries, adding
// boundary terms in index order. A cut at a forced boundary scores -Inf.
func Score(boundaries []Boundary, p Partition) (float64, error) {
	if err := checkCount(p.n, boundaries); err != nil {
		return 0, err
	}
	var s float64
	next := 0
	for i, b := range boundaries {
		cut := next < len(p.cuts) && p.cuts[next] == i
		if cut {
			next++
		}
		switch {
		case b.Forced && cut:
			return math.Inf(-1), nil
		case b.Forced:
		case cut:
			s += math.Log(1 - clamp(b.Probability))
		default:
			s += math.Log(clamp(b.Probability))
		}
	}
	return s, nil
}

func checkCount(n int, boundaries []Boundary) error {
	want := n - 1
	if want < 0 {
		want = 0
	}
	if len(boundaries) != want {
		return fmt.Errorf("%w: %d boundaries for %d strokes", ErrBoundaryCount, len(boundaries), n)
	}
	return nil
}
