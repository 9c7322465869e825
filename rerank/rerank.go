// Package rerank combines structural partition scores with symbol classifier
// confidences and re-orders segmentation hypotheses by the result.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/ink"
	"github.com/jamesainslie/go-hwseg/partition"
)

// Rule selects how structural and classifier evidence are combined.
type Rule int

const (
	// RuleProduct multiplies the structural score by every group's top
	// confidence.
	RuleProduct Rule = iota
	// RuleWeightedLogSum adds the weighted log structural score and the
	// weighted sum of log confidences.
	RuleWeightedLogSum
)

// ParseRule parses "product" or "weighted_log_sum".
func ParseRule(s string) (Rule, error) {
	switch s {
	case "", "product":
		return RuleProduct, nil
	case "weighted_log_sum":
		return RuleWeightedLogSum, nil
	}
	return 0, fmt.Errorf("rerank: unknown combination rule %q", s)
}

func (r Rule) String() string {
	switch r {
	case RuleProduct:
		return "product"
	case RuleWeightedLogSum:
		return "weighted_log_sum"
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// FailurePolicy decides what happens to a hypothesis when one of its groups
// could not be classified.
type FailurePolicy int

const (
	// FailLowest keeps the hypothesis with the lowest possible final score.
	FailLowest FailurePolicy = iota
	// FailDrop removes the hypothesis.
	FailDrop
)

// ParseFailurePolicy parses "lowest" or "drop".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "lowest":
		return FailLowest, nil
	case "drop":
		return FailDrop, nil
	}
	return 0, fmt.Errorf("rerank: unknown failure policy %q", s)
}

func (f FailurePolicy) String() string {
	switch f {
	case FailLowest:
		return "lowest"
	case FailDrop:
		return "drop"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(f))
}

// Config controls a Reranker.
type Config struct {
	Rule             Rule
	StructuralWeight float64
	ClassifierWeight float64
	OnFailure        FailurePolicy
	// Concurrency bounds in-flight classifier calls.
	Concurrency int
	// Prior, when set, scales each group's confidence by the probability of
	// its symbol having that many strokes.
	Prior *classify.StrokeCountPrior
}

// DefaultConfig returns the product rule with unit weights.
func DefaultConfig() Config {
	return Config{
		Rule:             RuleProduct,
		StructuralWeight: 1,
		ClassifierWeight: 1,
		OnFailure:        FailLowest,
		Concurrency:      runtime.NumCPU(),
	}
}

// Hypothesis is a partition together with its re-ranked score.
type Hypothesis struct {
	Partition partition.Partition
	// Symbols holds the chosen prediction per group; the zero Prediction
	// marks a group without one.
	Symbols       []classify.Prediction
	LogStructural float64
	LogFinal      float64
	// Failed is set when at least one group has no usable prediction.
	Failed bool
}

// Structural returns the structural score.
func (h Hypothesis) Structural() float64 { return math.Exp(h.LogStructural) }

// Final returns the combined score.
func (h Hypothesis) Final() float64 { return math.Exp(h.LogFinal) }

// Stats describes the classifier work done by one Rank call.
type Stats struct {
	Groups       int
	FailedGroups int
}

// Reranker re-orders hypotheses. It is safe for concurrent use.
type Reranker struct {
	clf    classify.SymbolClassifier
	cfg    Config
	logger *slog.Logger
}

// New returns a Reranker. A nil classifier makes Rank keep the structural
// order and scores.
func New(clf classify.SymbolClassifier, cfg Config, logger *slog.Logger) *Reranker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{clf: clf, cfg: cfg, logger: logger}
}

// Rank scores partitions of strokes and returns them best first.
func (r *Reranker) Rank(ctx context.Context, strokes []ink.Stroke, partitions []partition.Partition) ([]Hypothesis, error) {
	hyps, _, err := r.RankWithStats(ctx, strokes, partitions)
	return hyps, err
}

type groupResult struct {
	pred classify.Prediction
	ok   bool
}

// RankWithStats is Rank that also reports how many groups were classified
// and how many of those failed.
//
// Each distinct group is classified once. Equal final scores keep the input
// order. If ctx is cancelled no ranking is returned.
func (r *Reranker) RankWithStats(ctx context.Context, strokes []ink.Stroke, partitions []partition.Partition) ([]Hypothesis, Stats, error) {
	if r.clf == nil {
		hyps := make([]Hypothesis, len(partitions))
		for i, p := range partitions {
			hyps[i] = Hypothesis{Partition: p, LogStructural: p.LogScore(), LogFinal: p.LogScore()}
		}
		sortHypotheses(hyps)
		return hyps, Stats{}, nil
	}

	index := make(map[partition.Group]int)
	var groups []partition.Group
	for _, p := range partitions {
		if p.Len() != len(strokes) {
			return nil, Stats{}, fmt.Errorf("rerank: partition of %d strokes for %d strokes", p.Len(), len(strokes))
		}
		for _, g := range p.Groups() {
			if _, ok := index[g]; !ok {
				index[g] = len(groups)
				groups = append(groups, g)
			}
		}
	}

	results, err := r.classifyGroups(ctx, strokes, groups)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Groups: len(groups)}
	for _, res := range results {
		if !res.ok {
			stats.FailedGroups++
		}
	}

	hyps := make([]Hypothesis, 0, len(partitions))
	for _, p := range partitions {
		h := r.combine(p, index, results)
		if h.Failed && r.cfg.OnFailure == FailDrop {
			continue
		}
		hyps = append(hyps, h)
	}
	sortHypotheses(hyps)
	return hyps, stats, nil
}

func (r *Reranker) classifyGroups(ctx context.Context, strokes []ink.Stroke, groups []partition.Group) ([]groupResult, error) {
	results := make([]groupResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, grp := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			preds, err := r.clf.Classify(gctx, strokes[grp.Start:grp.End:grp.End])
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Warn("symbol classification failed",
					"start", grp.Start, "end", grp.End, "error", err)
				return nil
			}
			top, ok := classify.Top(preds)
			results[i] = groupResult{pred: top, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Reranker) combine(p partition.Partition, index map[partition.Group]int, results []groupResult) Hypothesis {
	h := Hypothesis{Partition: p, LogStructural: p.LogScore()}

	groups := p.Groups()
	h.Symbols = make([]classify.Prediction, len(groups))
	var logConf float64
	for i, g := range groups {
		res := results[index[g]]
		if !res.ok {
			h.Failed = true
			continue
		}
		h.Symbols[i] = res.pred
		conf := res.pred.Confidence
		if r.cfg.Prior != nil {
			conf *= r.cfg.Prior.Prob(res.pred.Symbol, g.Len())
		}
		logConf += math.Log(conf)
	}

	if h.Failed {
		h.LogFinal = math.Inf(-1)
		return h
	}

	switch r.cfg.Rule {
	case RuleWeightedLogSum:
		h.LogFinal = r.cfg.StructuralWeight * h.LogStructural
		if r.cfg.ClassifierWeight != 0 {
			h.LogFinal += r.cfg.ClassifierWeight * logConf
		}
	default:
		h.LogFinal = h.LogStructural + logConf
	}
	return h
}

// sortHypotheses orders by final score, failed hypotheses last.
func sortHypotheses(hyps []Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		if hyps[i].Failed != hyps[j].Failed {
			return !hyps[i].Failed
		}
		return hyps[i].LogFinal > hyps[j].LogFinal
	})
}
