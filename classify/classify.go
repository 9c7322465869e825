// Package classify defines the two model contracts the segmenter depends on:
// a pairwise merge scorer that estimates whether two consecutive strokes
// belong to the same symbol, and a symbol classifier that names a group of
// strokes. Built-in and ONNX-backed implementations are provided.
package classify

import (
	"context"
	"errors"
	"sort"

	"github.com/jamesainslie/go-hwseg/ink"
)

var (
	// ErrEmptyStroke is returned by scorers and featurizers given a stroke
	// without points.
	ErrEmptyStroke = errors.New("classify: empty stroke")

	// ErrModelOutput indicates a model returned a vector the adapter cannot
	// interpret.
	ErrModelOutput = errors.New("classify: unexpected model output")
)

// MultiSymbolLabel is the classifier class meaning "these strokes are more
// than one symbol". It is never chosen as a group's symbol.
const MultiSymbolLabel = "::MULTISYMBOL::"

// Context describes where a stroke pair sits in its recording.
type Context struct {
	// Index is the boundary index: the pair is Strokes[Index], Strokes[Index+1].
	Index int
	// Strokes is the whole recording in canonical order. Read only.
	Strokes []ink.Stroke
}

// MergeScorer estimates the probability that two consecutive strokes belong
// to the same symbol. Implementations must be safe for concurrent use.
type MergeScorer interface {
	MergeProbability(ctx context.Context, a, b ink.Stroke, c Context) (float64, error)
}

// MergeScorerFunc adapts a function to MergeScorer.
type MergeScorerFunc func(ctx context.Context, a, b ink.Stroke, c Context) (float64, error)

// MergeProbability calls f.
func (f MergeScorerFunc) MergeProbability(ctx context.Context, a, b ink.Stroke, c Context) (float64, error) {
	return f(ctx, a, b, c)
}

// Prediction is one candidate symbol for a stroke group.
type Prediction struct {
	Symbol     string  `msgpack:"symbol"`
	Confidence float64 `msgpack:"confidence"`
}

// SymbolClassifier returns candidate symbols for a stroke group, best first.
// Implementations must be safe for concurrent use.
type SymbolClassifier interface {
	Classify(ctx context.Context, strokes []ink.Stroke) ([]Prediction, error)
}

// SymbolClassifierFunc adapts a function to SymbolClassifier.
type SymbolClassifierFunc func(ctx context.Context, strokes []ink.Stroke) ([]Prediction, error)

// Classify calls f.
func (f SymbolClassifierFunc) Classify(ctx context.Context, strokes []ink.Stroke) ([]Prediction, error) {
	return f(ctx, strokes)
}

// Top returns the most confident prediction that names a single symbol.
func Top(preds []Prediction) (Prediction, bool) {
	best, found := Prediction{}, false
	for _, p := range preds {
		if p.Symbol == MultiSymbolLabel {
			continue
		}
		if !found || p.Confidence > best.Confidence {
			best, found = p, true
		}
	}
	return best, found
}

// sortPredictions orders predictions by confidence, highest first. Equal
// confidences keep their label order.
func sortPredictions(preds []Prediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})
}
