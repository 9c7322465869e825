// Package ink holds the on-line handwriting data model: timestamped points,
// strokes and recordings with optional ground-truth symbol groups.
package ink

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMalformed indicates a recording that cannot be segmented: an empty
// stroke, non-monotonic time, or ground truth that is not a partition of the
// recording's strokes.
var ErrMalformed = errors.New("ink: malformed recording")

// Point is one pen sample. Time is in milliseconds.
type Point struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Time int64   `json:"time"`
}

// Stroke is one pen-down to pen-up path.
type Stroke struct {
	Points []Point
}

// Validate checks that the stroke is non-empty and its time never decreases.
func (s Stroke) Validate() error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: empty stroke", ErrMalformed)
	}
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].Time < s.Points[i-1].Time {
			return fmt.Errorf("%w: time decreases at point %d", ErrMalformed, i)
		}
	}
	return nil
}

// Start returns the time of the first point, or 0 for an empty stroke.
func (s Stroke) Start() int64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[0].Time
}

// End returns the time of the last point, or 0 for an empty stroke.
func (s Stroke) End() int64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Time
}

// Length returns the arc length of the stroke.
func (s Stroke) Length() float64 {
	var l float64
	for i := 1; i < len(s.Points); i++ {
		l += math.Hypot(s.Points[i].X-s.Points[i-1].X, s.Points[i].Y-s.Points[i-1].Y)
	}
	return l
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height of the box.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Diagonal returns the length of the box diagonal.
func (b Box) Diagonal() float64 { return math.Hypot(b.Width(), b.Height()) }

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Bounds returns the bounding box of the stroke. An empty stroke has a zero box.
func (s Stroke) Bounds() Box {
	if len(s.Points) == 0 {
		return Box{}
	}
	b := Box{MinX: s.Points[0].X, MinY: s.Points[0].Y, MaxX: s.Points[0].X, MaxY: s.Points[0].Y}
	for _, p := range s.Points[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// GroupBounds returns the bounding box of several strokes.
func GroupBounds(strokes []Stroke) Box {
	var b Box
	first := true
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		if first {
			b = s.Bounds()
			first = false
			continue
		}
		b = b.Union(s.Bounds())
	}
	return b
}

// Symbol is one ground-truth group: the indices of the strokes that make up a
// single symbol and the symbol's identifier.
type Symbol struct {
	Strokes []int
	Label   string
}

// Recording is one handwriting sample: strokes in temporal order plus optional
// ground truth.
type Recording struct {
	ID      string
	Strokes []Stroke
	Truth   []Symbol
}

// HasTruth reports whether the recording carries a ground-truth segmentation.
func (r Recording) HasTruth() bool {
	return len(r.Truth) > 0
}

// TruthGroups returns the ground truth as stroke index groups.
func (r Recording) TruthGroups() [][]int {
	if len(r.Truth) == 0 {
		return nil
	}
	groups := make([][]int, len(r.Truth))
	for i, sym := range r.Truth {
		groups[i] = append([]int(nil), sym.Strokes...)
	}
	return groups
}

// Validate checks every stroke and, when present, that the ground truth
// assigns each stroke to exactly one symbol.
func (r Recording) Validate() error {
	for i, s := range r.Strokes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	if len(r.Truth) == 0 {
		return nil
	}

	seen := make([]bool, len(r.Strokes))
	for gi, sym := range r.Truth {
		if len(sym.Strokes) == 0 {
			return fmt.Errorf("%w: symbol %d has no strokes", ErrMalformed, gi)
		}
		for _, idx := range sym.Strokes {
			if idx < 0 || idx >= len(r.Strokes) {
				return fmt.Errorf("%w: symbol %d references stroke %d of %d", ErrMalformed, gi, idx, len(r.Strokes))
			}
			if seen[idx] {
				return fmt.Errorf("%w: stroke %d assigned twice", ErrMalformed, idx)
			}
			seen[idx] = true
		}
	}
	for idx, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: stroke %d missing from ground truth", ErrMalformed, idx)
		}
	}
	return nil
}

// Ordered returns a copy of the recording with strokes sorted by start time
// (stable, so strokes starting together keep their recorded order) and ground
// truth remapped to the new indices. order[i] is the original index of the
// stroke now at position i.
func (r Recording) Ordered() (out Recording, order []int) {
	order = make([]int, len(r.Strokes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.Strokes[order[a]].Start() < r.Strokes[order[b]].Start()
	})

	position := make([]int, len(order))
	out = Recording{ID: r.ID, Strokes: make([]Stroke, len(order))}
	for newIdx, oldIdx := range order {
		out.Strokes[newIdx] = r.Strokes[oldIdx]
		position[oldIdx] = newIdx
	}

	if len(r.Truth) > 0 {
		out.Truth = make([]Symbol, len(r.Truth))
		for i, sym := range r.Truth {
			idx := make([]int, len(sym.Strokes))
			for j, old := range sym.Strokes {
				if old >= 0 && old < len(position) {
					idx[j] = position[old]
				} else {
					idx[j] = old
				}
			}
			out.Truth[i] = Symbol{Strokes: idx, Label: sym.Label}
		}
	}
	return out, order
}
