package rerank

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/ink"
	"github.com/jamesainslie/go-hwseg/partition"
)

func strokes(n int) []ink.Stroke {
	out := make([]ink.Stroke, n)
	for i := range out {
		out[i] = ink.Stroke{Points: []ink.Point{{X: float64(i), Time: int64(i)}}}
	}
	return out
}

func threeStrokePartitions(t *testing.T) []partition.Partition {
	t.Helper()
	ps, err := partition.Search(3, []partition.Boundary{{Probability: 0.9}, {Probability: 0.1}}, partition.DefaultLimit)
	require.NoError(t, err)
	require.Len(t, ps, 4)
	return ps
}

// bySize names groups after their stroke count.
type bySize struct {
	preds map[int][]classify.Prediction
	fail  map[int]bool
	calls atomic.Int64
}

func (c *bySize) Classify(_ context.Context, s []ink.Stroke) ([]classify.Prediction, error) {
	c.calls.Add(1)
	if c.fail[len(s)] {
		return nil, errors.New("classifier down")
	}
	return c.preds[len(s)], nil
}

func newBySize() *bySize {
	return &bySize{
		preds: map[int][]classify.Prediction{
			1: {{Symbol: "a", Confidence: 0.5}},
			2: {{Symbol: "b", Confidence: 0.9}},
			3: {{Symbol: "c", Confidence: 0.1}},
		},
		fail: map[int]bool{},
	}
}

func indices(hyps []Hypothesis) [][][]int {
	out := make([][][]int, len(hyps))
	for i, h := range hyps {
		out[i] = h.Partition.Indices()
	}
	return out
}

func TestRank_Product(t *testing.T) {
	clf := newBySize()
	r := New(clf, DefaultConfig(), nil)

	hyps, stats, err := r.RankWithStats(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)

	assert.Equal(t, [][][]int{
		{{0, 1}, {2}},
		{{0}, {1}, {2}},
		{{0, 1, 2}},
		{{0}, {1, 2}},
	}, indices(hyps))

	assert.InDelta(t, 0.81*0.9*0.5, hyps[0].Final(), 1e-9)
	assert.InDelta(t, 0.09*0.125, hyps[1].Final(), 1e-9)
	assert.InDelta(t, 0.09*0.1, hyps[2].Final(), 1e-9)
	assert.InDelta(t, 0.01*0.45, hyps[3].Final(), 1e-9)
	assert.InDelta(t, 0.81, hyps[0].Structural(), 1e-9)
	assert.Equal(t, []classify.Prediction{{Symbol: "b", Confidence: 0.9}, {Symbol: "a", Confidence: 0.5}}, hyps[0].Symbols)

	// {0,1} {2} {0,3} {0} {1} {1,3}
	assert.Equal(t, int64(6), clf.calls.Load())
	assert.Equal(t, Stats{Groups: 6}, stats)
}

func TestRank_WeightedLogSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rule = RuleWeightedLogSum
	cfg.StructuralWeight = 1
	cfg.ClassifierWeight = 0

	ps := threeStrokePartitions(t)
	hyps, err := New(newBySize(), cfg, nil).Rank(context.Background(), strokes(3), ps)
	require.NoError(t, err)

	for i, h := range hyps {
		assert.True(t, h.Partition.Equal(ps[i]))
		assert.Equal(t, ps[i].LogScore(), h.LogFinal)
	}

	cfg.StructuralWeight = 0.5
	cfg.ClassifierWeight = 2
	hyps, err = New(newBySize(), cfg, nil).Rank(context.Background(), strokes(3), ps)
	require.NoError(t, err)
	want := 0.5*math.Log(0.81) + 2*(math.Log(0.9)+math.Log(0.5))
	assert.InDelta(t, want, hyps[0].LogFinal, 1e-9)
}

func TestRank_StableTies(t *testing.T) {
	ps, err := partition.Search(3, []partition.Boundary{{Probability: 0.5}, {Probability: 0.5}}, partition.DefaultLimit)
	require.NoError(t, err)

	same := classify.SymbolClassifierFunc(func(context.Context, []ink.Stroke) ([]classify.Prediction, error) {
		return []classify.Prediction{{Symbol: "x", Confidence: 1}}, nil
	})
	hyps, err := New(same, DefaultConfig(), nil).Rank(context.Background(), strokes(3), ps)
	require.NoError(t, err)

	for i := range ps {
		assert.True(t, hyps[i].Partition.Equal(ps[i]), "position %d", i)
	}
}

func TestRank_FailurePolicy(t *testing.T) {
	clf := newBySize()
	clf.fail[3] = true

	hyps, stats, err := New(clf, DefaultConfig(), nil).RankWithStats(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)
	require.Len(t, hyps, 4)

	last := hyps[len(hyps)-1]
	assert.Equal(t, [][]int{{0, 1, 2}}, last.Partition.Indices())
	assert.True(t, last.Failed)
	assert.True(t, math.IsInf(last.LogFinal, -1))
	assert.Equal(t, 0.0, last.Final())
	assert.Equal(t, 1, stats.FailedGroups)

	cfg := DefaultConfig()
	cfg.OnFailure = FailDrop
	hyps, err = New(clf, cfg, nil).Rank(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)
	require.Len(t, hyps, 3)
	for _, h := range hyps {
		assert.False(t, h.Failed)
		assert.NotEqual(t, 1, h.Partition.NumGroups())
	}
}

func TestRank_FailedBelowZeroConfidence(t *testing.T) {
	clf := newBySize()
	clf.preds[1] = []classify.Prediction{{Symbol: "a", Confidence: 0}}
	clf.fail[2] = true

	hyps, err := New(clf, DefaultConfig(), nil).Rank(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)

	assert.Equal(t, [][][]int{
		{{0, 1, 2}},
		{{0}, {1}, {2}},
		{{0, 1}, {2}},
		{{0}, {1, 2}},
	}, indices(hyps))

	assert.False(t, hyps[1].Failed)
	assert.True(t, math.IsInf(hyps[1].LogFinal, -1))
	assert.True(t, hyps[2].Failed)
	assert.True(t, hyps[3].Failed)
}

func TestRank_MultiSymbol(t *testing.T) {
	clf := newBySize()
	clf.preds[2] = []classify.Prediction{
		{Symbol: classify.MultiSymbolLabel, Confidence: 0.7},
		{Symbol: "b", Confidence: 0.3},
	}
	clf.preds[3] = []classify.Prediction{{Symbol: classify.MultiSymbolLabel, Confidence: 1}}

	hyps, err := New(clf, DefaultConfig(), nil).Rank(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)

	for _, h := range hyps {
		switch h.Partition.NumGroups() {
		case 1:
			assert.True(t, h.Failed)
		case 2:
			assert.False(t, h.Failed)
			assert.Contains(t, h.Symbols, classify.Prediction{Symbol: "b", Confidence: 0.3})
		}
	}
}

func TestRank_Idempotent(t *testing.T) {
	r := New(newBySize(), DefaultConfig(), nil)
	first, err := r.Rank(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)

	ps := make([]partition.Partition, len(first))
	for i, h := range first {
		ps[i] = h.Partition
	}
	second, err := r.Rank(context.Background(), strokes(3), ps)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRank_NilClassifier(t *testing.T) {
	ps := threeStrokePartitions(t)
	hyps, stats, err := New(nil, DefaultConfig(), nil).RankWithStats(context.Background(), strokes(3), ps)
	require.NoError(t, err)
	require.Len(t, hyps, len(ps))

	for i, h := range hyps {
		assert.True(t, h.Partition.Equal(ps[i]))
		assert.Equal(t, h.LogStructural, h.LogFinal)
		assert.Nil(t, h.Symbols)
	}
	assert.Equal(t, Stats{}, stats)
}

func TestRank_StrokeCountPrior(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prior = classify.NewStrokeCountPrior(map[string]map[int]float64{
		"a": {1: 1},
		"b": {2: 0.5},
		"c": {3: 1},
	})
	hyps, err := New(newBySize(), cfg, nil).Rank(context.Background(), strokes(3), threeStrokePartitions(t))
	require.NoError(t, err)

	assert.Equal(t, [][]int{{0, 1}, {2}}, hyps[0].Partition.Indices())
	assert.InDelta(t, 0.81*0.9*0.5*0.5, hyps[0].Final(), 1e-9)
}

func TestRank_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clf := newBySize()
	hyps, err := New(clf, DefaultConfig(), nil).Rank(ctx, strokes(3), threeStrokePartitions(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, hyps)
	assert.Equal(t, int64(0), clf.calls.Load())
}

func TestRank_LengthMismatch(t *testing.T) {
	_, err := New(newBySize(), DefaultConfig(), nil).Rank(context.Background(), strokes(2), threeStrokePartitions(t))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	rule, err := ParseRule("weighted_log_sum")
	require.NoError(t, err)
	assert.Equal(t, RuleWeightedLogSum, rule)
	assert.Equal(t, "weighted_log_sum", rule.String())

	_, err = ParseRule("sum")
	assert.Error(t, err)

	policy, err := ParseFailurePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, FailDrop, policy)
	assert.Equal(t, "drop", policy.String())

	_, err = ParseFailurePolicy("retry")
	assert.Error(t, err)
}
