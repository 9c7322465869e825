package classify

import (
	"math"

	"github.com/jamesainslie/go-hwseg/ink"
)

// PairFeaturizer turns a stroke pair into a model input vector.
type PairFeaturizer func(a, b ink.Stroke, c Context) ([]float32, error)

// GroupFeaturizer turns a stroke group into a model input vector.
type GroupFeaturizer func(strokes []ink.Stroke) ([]float32, error)

// GapFeatures is the default PairFeaturizer. The vector is:
//
//	0 stroke distance          4 length of b
//	1 time distance (ms)       5 point count of a
//	2 strokes in between       6 point count of b
//	3 length of a              7 distance in mean diagonals
func GapFeatures(a, b ink.Stroke, _ Context) ([]float32, error) {
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return nil, ErrEmptyStroke
	}
	return []float32{
		float32(StrokeDistance(a, b)),
		float32(TimeDistance(a, b)),
		1,
		float32(a.Length()),
		float32(b.Length()),
		float32(len(a.Points)),
		float32(len(b.Points)),
		float32(NormalizedDistance(a, b)),
	}, nil
}

// PointGrid is a GroupFeaturizer that resamples each stroke to a fixed number
// of points and scales the group into the unit square.
type PointGrid struct {
	// Strokes is the number of stroke slots; extra strokes are dropped and
	// missing ones are zero filled.
	Strokes int
	// Points is the number of points sampled per stroke.
	Points int
}

// DefaultPointGrid matches the symbol models shipped with the tools.
func DefaultPointGrid() PointGrid {
	return PointGrid{Strokes: 4, Points: 20}
}

// Dim returns the length of the vectors Features produces.
func (g PointGrid) Dim() int {
	return g.Strokes*g.Points*2 + 1
}

// Features implements GroupFeaturizer. The last value is the stroke count.
func (g PointGrid) Features(strokes []ink.Stroke) ([]float32, error) {
	for _, s := range strokes {
		if len(s.Points) == 0 {
			return nil, ErrEmptyStroke
		}
	}

	box := ink.GroupBounds(strokes)
	scale := math.Max(box.Width(), box.Height())
	if scale == 0 {
		scale = 1
	}

	out := make([]float32, g.Dim())
	for i, s := range strokes {
		if i == g.Strokes {
			break
		}
		for j, p := range resample(s, g.Points) {
			k := (i*g.Points + j) * 2
			out[k] = float32((p.X - box.MinX) / scale)
			out[k+1] = float32((p.Y - box.MinY) / scale)
		}
	}
	out[len(out)-1] = float32(len(strokes))
	return out, nil
}

// resample returns n points spaced evenly along the stroke's arc length.
func resample(s ink.Stroke, n int) []ink.Point {
	out := make([]ink.Point, n)
	total := s.Length()
	if len(s.Points) == 1 || total == 0 || n == 1 {
		for i := range out {
			out[i] = s.Points[0]
		}
		return out
	}

	step := total / float64(n-1)
	seg, walked := 1, 0.0
	for i := range out {
		target := step * float64(i)
		for seg < len(s.Points)-1 {
			d := dist(s.Points[seg-1], s.Points[seg])
			if walked+d >= target {
				break
			}
			walked += d
			seg++
		}
		a, b := s.Points[seg-1], s.Points[seg]
		d := dist(a, b)
		t := 0.0
		if d > 0 {
			t = math.Min(1, math.Max(0, (target-walked)/d))
		}
		out[i] = ink.Point{
			X:    a.X + t*(b.X-a.X),
			Y:    a.Y + t*(b.Y-a.Y),
			Time: a.Time + int64(t*float64(b.Time-a.Time)),
		}
	}
	return out
}

func dist(a, b ink.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
