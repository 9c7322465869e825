package bench

import (
	"errors"
	"sort"

	hwseg "github.com/jamesainslie/go-hwseg"
	"github.com/jamesainslie/go-hwseg/ink"
	"github.com/jamesainslie/go-hwseg/partition"
	"github.com/jamesainslie/go-hwseg/rerank"
)

// TopN lists the ranks reported as TOP-N accuracies.
var TopN = []int{1, 3, 10, 20, 50}

// Record is the evaluation of one recording. It is never modified after
// Evaluate returns it.
type Record struct {
	ID         string `msgpack:"id"`
	Strokes    int    `msgpack:"strokes"`
	HasTruth   bool   `msgpack:"has_truth"`
	OutOfOrder bool   `msgpack:"out_of_order"`
	Found      bool   `msgpack:"found"`
	// Rank is the 1-based position of the ground truth among the
	// hypotheses, or 0 when it is not among them.
	Rank int `msgpack:"rank"`
	// OverSegmented is set when every hypothesis splits a true symbol.
	OverSegmented bool `msgpack:"over_segmented"`
	// UnderSegmented is set when every hypothesis joins two true symbols.
	UnderSegmented     bool   `msgpack:"under_segmented"`
	Hypotheses         int    `msgpack:"hypotheses"`
	ScorerFailures     int    `msgpack:"scorer_failures"`
	ClassifierFailures int    `msgpack:"classifier_failures"`
	Error              string `msgpack:"error,omitempty"`
}

// Evaluated reports whether the record counts toward rank metrics.
func (r Record) Evaluated() bool {
	return r.Error == "" && r.HasTruth && !r.OutOfOrder
}

// RankOf returns the 1-based position of the first hypothesis grouping the
// strokes like truth, or 0 if there is none.
func RankOf(hyps []rerank.Hypothesis, truth partition.Partition) int {
	for i, h := range hyps {
		if h.Partition.Equal(truth) {
			return i + 1
		}
	}
	return 0
}

// Evaluate compares a segmentation result with the recording's ground
// truth. res may be nil when segmentation failed.
func Evaluate(res *hwseg.Result, rec ink.Recording) Record {
	r := Record{
		ID:       rec.ID,
		Strokes:  len(rec.Strokes),
		HasTruth: rec.HasTruth(),
	}
	if res != nil {
		r.Hypotheses = len(res.Hypotheses)
		r.ScorerFailures = res.ScorerFailures
		r.ClassifierFailures = res.ClassifierFailures
	}
	if !r.HasTruth {
		return r
	}

	// hypotheses refer to canonical stroke order
	canon, _ := rec.Ordered()
	truth := partition.Normalize(canon.TruthGroups())
	if partition.IsOutOfOrder(truth) {
		r.OutOfOrder = true
		return r
	}
	want, err := partition.FromGroups(len(canon.Strokes), truth)
	if err != nil {
		if errors.Is(err, partition.ErrNotContiguous) {
			r.OutOfOrder = true
		} else {
			r.Error = err.Error()
		}
		return r
	}
	if res == nil {
		return r
	}

	r.Rank = RankOf(res.Hypotheses, want)
	r.Found = r.Rank > 0

	if len(res.Hypotheses) > 0 {
		r.OverSegmented, r.UnderSegmented = true, true
		for _, h := range res.Hypotheses {
			pred := h.Partition.Indices()
			if !partition.HasWrongBreak(truth, pred) {
				r.OverSegmented = false
			}
			if !partition.HasMissingBreak(truth, pred) {
				r.UnderSegmented = false
			}
		}
	}
	return r
}

// Summary aggregates records.
type Summary struct {
	Recordings int `msgpack:"recordings"`
	Failed     int `msgpack:"failed"`
	WithTruth  int `msgpack:"with_truth"`
	OutOfOrder int `msgpack:"out_of_order"`
	// Evaluated counts in-order recordings with truth; it is the denominator
	// of every accuracy.
	Evaluated int `msgpack:"evaluated"`
	Found     int `msgpack:"found"`
	// Top maps N to the number of recordings with rank at most N.
	Top            map[int]int `msgpack:"top"`
	MeanRank       float64     `msgpack:"mean_rank"`
	MedianRank     float64     `msgpack:"median_rank"`
	OverSegmented  int         `msgpack:"over_segmented"`
	UnderSegmented int         `msgpack:"under_segmented"`
	OverAndUnder   int         `msgpack:"over_and_under"`
}

// Accuracy returns the TOP-n accuracy, or 0 when nothing was evaluated.
func (s Summary) Accuracy(n int) float64 {
	if s.Evaluated == 0 {
		return 0
	}
	return float64(s.Top[n]) / float64(s.Evaluated)
}

// Accumulator folds records into a Summary. It is not safe for concurrent
// use; run it once over the collected records.
type Accumulator struct {
	s     Summary
	ranks []int
}

// Add folds one record.
func (a *Accumulator) Add(r Record) {
	if a.s.Top == nil {
		a.s.Top = make(map[int]int, len(TopN))
		for _, n := range TopN {
			a.s.Top[n] = 0
		}
	}

	a.s.Recordings++
	if r.Error != "" {
		a.s.Failed++
		return
	}
	if !r.HasTruth {
		return
	}
	a.s.WithTruth++
	if r.OutOfOrder {
		a.s.OutOfOrder++
		return
	}

	a.s.Evaluated++
	if r.OverSegmented {
		a.s.OverSegmented++
	}
	if r.UnderSegmented {
		a.s.UnderSegmented++
	}
	if r.OverSegmented && r.UnderSegmented {
		a.s.OverAndUnder++
	}
	if !r.Found {
		return
	}
	a.s.Found++
	a.ranks = append(a.ranks, r.Rank)
	for _, n := range TopN {
		if r.Rank <= n {
			a.s.Top[n]++
		}
	}
}

// Summary returns the aggregate of the records added so far.
func (a *Accumulator) Summary() Summary {
	s := a.s
	if s.Top == nil {
		s.Top = make(map[int]int, len(TopN))
		for _, n := range TopN {
			s.Top[n] = 0
		}
	} else {
		s.Top = make(map[int]int, len(a.s.Top))
		for n, c := range a.s.Top {
			s.Top[n] = c
		}
	}
	s.MeanRank, s.MedianRank = meanMedian(a.ranks)
	return s
}

// Aggregate folds records into a Summary.
func Aggregate(records []Record) Summary {
	var acc Accumulator
	for _, r := range records {
		acc.Add(r)
	}
	return acc.Summary()
}

func meanMedian(ranks []int) (mean, median float64) {
	if len(ranks) == 0 {
		return 0, 0
	}
	sorted := append([]int(nil), ranks...)
	sort.Ints(sorted)

	sum := 0
	for _, r := range sorted {
		sum += r
	}
	mean = float64(sum) / float64(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = float64(sorted[mid])
	} else {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return mean, median
}
