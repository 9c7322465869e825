package classify

import (
	"context"
	"math"

	"github.com/jamesainslie/go-hwseg/ink"
)

// GeometricScorer is a model-free MergeScorer. It combines the time between
// two strokes and the distance between them, measured in mean stroke
// diagonals, through a logistic function:
//
//	p = sigmoid(Bias - TimeWeight*seconds - DistanceWeight*distance)
type GeometricScorer struct {
	Bias           float64
	TimeWeight     float64
	DistanceWeight float64
}

// DefaultGeometricScorer returns a GeometricScorer with weights that favour
// merging strokes written quickly one after another and close together.
func DefaultGeometricScorer() GeometricScorer {
	return GeometricScorer{
		Bias:           2.5,
		TimeWeight:     2.0,
		DistanceWeight: 4.0,
	}
}

// MergeProbability implements MergeScorer.
func (g GeometricScorer) MergeProbability(ctx context.Context, a, b ink.Stroke, _ Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return 0, ErrEmptyStroke
	}

	seconds := float64(TimeDistance(a, b)) / 1000
	dist := NormalizedDistance(a, b)

	return sigmoid(g.Bias - g.TimeWeight*seconds - g.DistanceWeight*dist), nil
}

// TimeDistance is the smallest absolute time difference, in milliseconds,
// between the i-th points of both strokes.
func TimeDistance(a, b ink.Stroke) int64 {
	n := min(len(a.Points), len(b.Points))
	if n == 0 {
		return 0
	}
	best := abs64(a.Points[0].Time - b.Points[0].Time)
	for i := 1; i < n; i++ {
		best = min(best, abs64(a.Points[i].Time-b.Points[i].Time))
	}
	return best
}

// StrokeDistance is the smallest distance between any segment of a and any
// segment of b. Single-point strokes are treated as zero-length segments.
func StrokeDistance(a, b ink.Stroke) float64 {
	if len(a.Points) == 0 || len(b.Points) == 0 {
		return 0
	}
	sa, sb := segments(a), segments(b)
	best := math.Inf(1)
	for _, x := range sa {
		for _, y := range sb {
			best = math.Min(best, segmentDistance(x, y))
			if best == 0 {
				return 0
			}
		}
	}
	return best
}

// NormalizedDistance is StrokeDistance divided by the mean bounding box
// diagonal of the two strokes. Dots and other degenerate strokes fall back
// to the raw distance.
func NormalizedDistance(a, b ink.Stroke) float64 {
	d := StrokeDistance(a, b)
	scale := (a.Bounds().Diagonal() + b.Bounds().Diagonal()) / 2
	if scale <= 0 {
		return d
	}
	return d / scale
}

type vec struct{ x, y float64 }

type segment struct{ p, q vec }

func segments(s ink.Stroke) []segment {
	if len(s.Points) == 1 {
		p := vec{s.Points[0].X, s.Points[0].Y}
		return []segment{{p, p}}
	}
	out := make([]segment, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		out = append(out, segment{
			p: vec{s.Points[i-1].X, s.Points[i-1].Y},
			q: vec{s.Points[i].X, s.Points[i].Y},
		})
	}
	return out
}

func segmentDistance(a, b segment) float64 {
	if intersects(a, b) {
		return 0
	}
	return math.Min(
		math.Min(pointSegmentDistance(a.p, b), pointSegmentDistance(a.q, b)),
		math.Min(pointSegmentDistance(b.p, a), pointSegmentDistance(b.q, a)),
	)
}

func pointSegmentDistance(p vec, s segment) float64 {
	dx, dy := s.q.x-s.p.x, s.q.y-s.p.y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.x-s.p.x, p.y-s.p.y)
	}
	t := ((p.x-s.p.x)*dx + (p.y-s.p.y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.x-(s.p.x+t*dx), p.y-(s.p.y+t*dy))
}

func cross(o, a, b vec) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// intersects reports a proper crossing. Touching and collinear overlaps are
// caught by the endpoint distances.
func intersects(a, b segment) bool {
	d1 := cross(b.p, b.q, a.p)
	d2 := cross(b.p, b.q, a.q)
	d3 := cross(a.p, a.q, b.p)
	d4 := cross(a.p, a.q, b.q)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
