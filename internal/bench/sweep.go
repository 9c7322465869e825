package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	hwseg "github.com/jamesainslie/go-hwseg"
	"github.com/jamesainslie/go-hwseg/classify"
	"github.com/jamesainslie/go-hwseg/ink"
)

// SweepResult holds the summary for one structural weight.
type SweepResult struct {
	StructuralWeight float64
	Summary          Summary
}

// SweepWeights generates weights from min up to, but excluding, max.
func SweepWeights(min, max, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var weights []float64
	for i := 0; ; i++ {
		w := min + float64(i)*step
		if w >= max-step*1e-9 {
			break
		}
		weights = append(weights, math.Round(w*1e9)/1e9)
	}
	return weights
}

// Sweep evaluates the weighted log sum rule at each structural weight, with
// the classifier weight from base, and returns the results sorted by TOP-1
// accuracy, best first.
func Sweep(ctx context.Context, scorer classify.MergeScorer, clf classify.SymbolClassifier, recordings []ink.Recording, base Config, weights []float64, logger *slog.Logger) ([]SweepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]SweepResult, 0, len(weights))
	for _, w := range weights {
		opts := append(base.Options(),
			hwseg.WithCombination("weighted_log_sum", w, base.Combination.ClassifierWeight),
			hwseg.WithLogger(logger))
		seg, err := hwseg.New(scorer, clf, opts...)
		if err != nil {
			return nil, fmt.Errorf("structural weight %v: %w", w, err)
		}

		records, err := Run(ctx, seg, recordings, base.Workers, logger)
		if err != nil {
			return nil, err
		}
		s := Aggregate(records)
		logger.Info("sweep step", "structural_weight", w, "top1", s.Accuracy(1))

		results = append(results, SweepResult{StructuralWeight: w, Summary: s})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Summary.Accuracy(1) > results[j].Summary.Accuracy(1)
	})
	return results, nil
}
