package hwseg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/inference"
	"github.com/jamesainslie/go-hwseg/ink"
	"github.com/jamesainslie/go-hwseg/partition"
	"github.com/jamesainslie/go-hwseg/rerank"
)

// unknownProbability is substituted for a boundary the scorer failed on.
const unknownProbability = 0.5

// Segmenter turns a recording into ranked segmentation hypotheses.
// It is safe for concurrent use.
type Segmenter struct {
	scorer   classify.MergeScorer
	reranker *rerank.Reranker
	tieBreak partition.TieBreak
	cfg      config
	logger   *slog.Logger
	closers  []io.Closer
}

// Result is the outcome of segmenting one recording. Stroke indices in
// Boundaries and Hypotheses refer to canonical (start time) order.
type Result struct {
	RecordingID string
	// Order maps canonical positions to input indices: Order[i] is the
	// input index of the i-th canonical stroke.
	Order              []int
	Boundaries         []partition.Boundary
	Hypotheses         []rerank.Hypothesis
	ScorerFailures     int
	ClassifierFailures int
}

// InputGroups returns the groups of hypothesis i in input stroke indices.
func (r *Result) InputGroups(i int) [][]int {
	groups := r.Hypotheses[i].Partition.Indices()
	for _, g := range groups {
		for j, idx := range g {
			g[j] = r.Order[idx]
		}
	}
	return groups
}

// New creates a Segmenter from a merge scorer and an optional symbol
// classifier. A nil scorer uses classify.DefaultGeometricScorer; a nil
// classifier ranks by structural score alone.
func New(scorer classify.MergeScorer, clf classify.SymbolClassifier, opts ...Option) (*Segmenter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rule, err := rerank.ParseRule(cfg.Rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	policy, err := rerank.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	tieBreak, err := partition.ParseTieBreak(cfg.TieBreak)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if scorer == nil {
		scorer = classify.DefaultGeometricScorer()
	}

	return &Segmenter{
		scorer: scorer,
		reranker: rerank.New(clf, rerank.Config{
			Rule:             rule,
			StructuralWeight: cfg.StructuralWeight,
			ClassifierWeight: cfg.ClassifierWeight,
			OnFailure:        policy,
			Concurrency:      cfg.Concurrency,
			Prior:            cfg.Prior,
		}, cfg.Logger),
		tieBreak: tieBreak,
		cfg:      cfg,
		logger:   cfg.Logger,
	}, nil
}

// Open creates a Segmenter backed by ONNX models: a pairwise merge model and,
// when symbolModel is not empty, a symbol classifier whose class names are
// read from labelsPath.
func Open(pairModel, symbolModel, labelsPath string, opts ...Option) (*Segmenter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	paths := []string{pairModel}
	if symbolModel != "" {
		paths = append(paths, symbolModel, labelsPath)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p)
			}
			return nil, fmt.Errorf("checking model file: %w", err)
		}
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close() // Best-effort cleanup; original error takes precedence
		}
	}

	pairPool, err := inference.NewPool(pairModel, inference.DefaultIO(), cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	closers = append(closers, pairPool)

	var clf classify.SymbolClassifier
	if symbolModel != "" {
		labels, err := classify.LoadLabels(labelsPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
		}
		symbolPool, err := inference.NewPool(symbolModel, inference.DefaultIO(), cfg.PoolSize)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
		}
		closers = append(closers, symbolPool)
		clf = classify.NewONNXSymbolClassifier(symbolPool, labels, nil)
	}

	seg, err := New(classify.NewONNXMergeScorer(pairPool, nil), clf, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	seg.closers = closers
	return seg, nil
}

// Boundaries scores the boundaries between consecutive strokes in the order
// given. A boundary the scorer fails on gets the missing-boundary default
// and is counted in the second return value.
func (s *Segmenter) Boundaries(ctx context.Context, rec ink.Recording) ([]partition.Boundary, int, error) {
	if err := rec.Validate(); err != nil {
		return nil, 0, fmt.Errorf("recording %q: %w", rec.ID, err)
	}
	return s.boundaries(ctx, rec.Strokes)
}

func (s *Segmenter) boundaries(ctx context.Context, strokes []ink.Stroke) ([]partition.Boundary, int, error) {
	if len(strokes) < 2 {
		return []partition.Boundary{}, 0, nil
	}

	out := make([]partition.Boundary, len(strokes)-1)
	failed := make([]bool, len(out))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range out {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c := classify.Context{Index: i, Strokes: strokes}
			p, err := s.scorer.MergeProbability(gctx, strokes[i], strokes[i+1], c)
			if err == nil && (math.IsNaN(p) || p < 0 || p > 1) {
				err = fmt.Errorf("probability %v outside [0, 1]", p)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("substituting boundary probability",
					"boundary", i,
					"policy", s.cfg.MissingBoundary,
					"error", fmt.Errorf("%w: %w", ErrScorerUnavailable, err))
				out[i] = s.missingBoundary()
				failed[i] = true
				return nil
			}
			out[i] = partition.Boundary{Probability: p}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var failures int
	for _, f := range failed {
		if f {
			failures++
		}
	}
	return out, failures, nil
}

func (s *Segmenter) missingBoundary() partition.Boundary {
	return partition.Boundary{
		Probability: unknownProbability,
		Forced:      s.cfg.MissingBoundary == MissingForbidCut,
	}
}

// Segment validates rec, puts its strokes in canonical order, scores the
// boundaries, searches the best partitions and re-ranks them with the symbol
// classifier.
func (s *Segmenter) Segment(ctx context.Context, rec ink.Recording) (*Result, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("recording %q: %w", rec.ID, err)
	}

	canon, order := rec.Ordered()
	res := &Result{
		RecordingID: rec.ID,
		Order:       order,
		Boundaries:  []partition.Boundary{},
		Hypotheses:  []rerank.Hypothesis{},
	}
	n := len(canon.Strokes)
	if n == 0 {
		return res, nil
	}

	boundaries, failures, err := s.boundaries(ctx, canon.Strokes)
	if err != nil {
		return nil, err
	}
	res.Boundaries = boundaries
	res.ScorerFailures = failures

	var partitions []partition.Partition
	if s.cfg.Sharded {
		partitions, err = partition.SearchSharded(ctx, n, boundaries, s.cfg.MaxHypotheses)
	} else {
		partitions, err = partition.Search(n, boundaries, s.cfg.MaxHypotheses)
	}
	if err != nil {
		return nil, fmt.Errorf("searching partitions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hyps, stats, err := s.reranker.RankWithStats(ctx, canon.Strokes, partitions)
	if err != nil {
		return nil, err
	}
	res.Hypotheses = hyps
	res.ClassifierFailures = stats.FailedGroups

	s.logger.Debug("segmented recording",
		"id", rec.ID,
		"strokes", n,
		"hypotheses", len(hyps),
		"tie_break", s.tieBreak,
		"groups_classified", stats.Groups,
		"scorer_failures", failures,
		"classifier_failures", stats.FailedGroups)

	return res, nil
}

// Close releases the model sessions created by Open.
func (s *Segmenter) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
