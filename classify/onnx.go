package classify

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/jamesainslie/go-hwseg/ink"
)

// Model runs one feature vector through a model. *inference.Pool
// implements it.
type Model interface {
	Infer(ctx context.Context, features []float32) ([]float32, error)
}

// ONNXMergeScorer is a MergeScorer backed by a pairwise model. The model
// returns either a single merge probability or a two-class vector whose
// second entry is "same symbol".
type ONNXMergeScorer struct {
	model    Model
	features PairFeaturizer
}

// NewONNXMergeScorer returns a scorer that featurizes pairs with f, or with
// GapFeatures when f is nil.
func NewONNXMergeScorer(model Model, f PairFeaturizer) *ONNXMergeScorer {
	if f == nil {
		f = GapFeatures
	}
	return &ONNXMergeScorer{model: model, features: f}
}

// MergeProbability implements MergeScorer.
func (s *ONNXMergeScorer) MergeProbability(ctx context.Context, a, b ink.Stroke, c Context) (float64, error) {
	x, err := s.features(a, b, c)
	if err != nil {
		return 0, err
	}
	out, err := s.model.Infer(ctx, x)
	if err != nil {
		return 0, fmt.Errorf("merge model: %w", err)
	}

	var p float64
	switch len(out) {
	case 1:
		p = float64(out[0])
	case 2:
		p = probabilities(out)[1]
	default:
		return 0, fmt.Errorf("%w: %d values from merge model", ErrModelOutput, len(out))
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: merge probability %v", ErrModelOutput, p)
	}
	return p, nil
}

// ONNXSymbolClassifier is a SymbolClassifier backed by a model with one
// output per label.
type ONNXSymbolClassifier struct {
	model    Model
	labels   []string
	features GroupFeaturizer
}

// NewONNXSymbolClassifier returns a classifier for the given labels that
// featurizes groups with f, or with DefaultPointGrid when f is nil.
func NewONNXSymbolClassifier(model Model, labels []string, f GroupFeaturizer) *ONNXSymbolClassifier {
	if f == nil {
		f = DefaultPointGrid().Features
	}
	return &ONNXSymbolClassifier{
		model:    model,
		labels:   append([]string(nil), labels...),
		features: f,
	}
}

// Labels returns the class labels in model output order.
func (c *ONNXSymbolClassifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Classify implements SymbolClassifier.
func (c *ONNXSymbolClassifier) Classify(ctx context.Context, strokes []ink.Stroke) ([]Prediction, error) {
	x, err := c.features(strokes)
	if err != nil {
		return nil, err
	}
	out, err := c.model.Infer(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("symbol model: %w", err)
	}
	if len(out) != len(c.labels) {
		return nil, fmt.Errorf("%w: %d values for %d labels", ErrModelOutput, len(out), len(c.labels))
	}

	probs := probabilities(out)
	preds := make([]Prediction, len(probs))
	for i, p := range probs {
		preds[i] = Prediction{Symbol: c.labels[i], Confidence: p}
	}
	sortPredictions(preds)
	return preds, nil
}

// LoadLabels reads one label per line. Blank lines are skipped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening labels: %w", err)
	}
	defer func() { _ = f.Close() }()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// probabilities returns out unchanged when it already is a distribution and
// its softmax otherwise.
func probabilities(out []float32) []float64 {
	probs := make([]float64, len(out))
	sum := 0.0
	isDist := true
	for i, v := range out {
		probs[i] = float64(v)
		sum += probs[i]
		if v < 0 || v > 1 {
			isDist = false
		}
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return probs
	}

	hi := math.Inf(-1)
	for _, v := range probs {
		hi = math.Max(hi, v)
	}
	sum = 0
	for i, v := range probs {
		probs[i] = math.Exp(v - hi)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
