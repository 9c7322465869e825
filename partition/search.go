package partition

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the default number of partitions kept per recording.
const DefaultLimit = 500

// minProbability bounds boundary probabilities away from 0 and 1 so every
// reachable partition has a finite score in (0, 1].
const minProbability = 1e-9

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0.5
	}
	return math.Min(math.Max(p, minProbability), 1-minProbability)
}

// TieBreak selects how partitions with equal structural scores are ordered.
type TieBreak int

const (
	// TieFewerGroupsThenLexical prefers fewer groups, then the partition whose
	// cut positions are lexicographically earliest.
	TieFewerGroupsThenLexical TieBreak = iota
)

// ParseTieBreak parses a tie-break name.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "fewer_groups_then_lexical":
		return TieFewerGroupsThenLexical, nil
	}
	return 0, fmt.Errorf("partition: unknown tie break %q", s)
}

// String returns the configuration name of the tie break.
func (t TieBreak) String() string {
	switch t {
	case TieFewerGroupsThenLexical:
		return "fewer_groups_then_lexical"
	}
	return fmt.Sprintf("TieBreak(%d)", int(t))
}

// state is a partial partition: boundaries before next are decided.
type state struct {
	next     int
	logScore float64
	// bound is the log score of the state's best completion: every
	// undecided boundary takes its better option, no cut on a tie. Terms are
	// added in boundary order, the same order Score uses, so bound is exactly
	// the completion's score and no completion scores higher.
	bound float64
	// cuts is shared with the parent on a no-cut step and copied on a cut
	// step; it is never written after creation.
	cuts []int
	// tail holds the cuts the best completion adds at or after next.
	tail     []int
	complete bool
}

func (st *state) numCuts() int { return len(st.cuts) + len(st.tail) }

func (st *state) cutAt(i int) int {
	if i < len(st.cuts) {
		return st.cuts[i]
	}
	return st.tail[i-len(st.cuts)]
}

// before orders states by their best completion: higher score, fewer
// groups, lexically earliest cuts. That completion is the first of all the
// state's completions in the same order, so a complete state is dequeued as
// soon as nothing left can precede it. Restricted to complete states it is
// a strict total order.
func before(a, b *state) bool {
	if a.bound != b.bound {
		return a.bound > b.bound
	}
	na, nb := a.numCuts(), b.numCuts()
	if na != nb {
		return na < nb
	}
	for i := 0; i < na; i++ {
		if x, y := a.cutAt(i), b.cutAt(i); x != y {
			return x < y
		}
	}
	if a.complete != b.complete {
		return !a.complete
	}
	return false
}

type frontier []*state

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return before(f[i], f[j]) }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(*state)) }
func (f *frontier) Pop() any {
	old := *f
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*f = old[:len(old)-1]
	return last
}

// searcher expands states for one recording.
type searcher struct {
	n          int
	boundaries []Boundary
	logKeep    []float64
	logCut     []float64
	// prefer[i] reports whether cutting at boundary i scores strictly higher.
	prefer []bool
	// greedy lists the preferred cuts; greedyFrom[i] indexes the first one
	// at or after boundary i.
	greedy     []int
	greedyFrom []int
}

func newSearcher(n int, boundaries []Boundary) *searcher {
	s := &searcher{
		n:          n,
		boundaries: boundaries,
		logKeep:    make([]float64, len(boundaries)),
		logCut:     make([]float64, len(boundaries)),
		prefer:     make([]bool, len(boundaries)),
		greedyFrom: make([]int, len(boundaries)+1),
	}
	for i, b := range boundaries {
		p := clamp(b.Probability)
		s.logKeep[i] = math.Log(p)
		s.logCut[i] = math.Log(1 - p)
		s.prefer[i] = !b.Forced && s.logCut[i] > s.logKeep[i]
		if s.prefer[i] {
			s.greedy = append(s.greedy, i)
		}
	}
	j := len(s.greedy)
	for i := len(boundaries); i >= 0; i-- {
		for j > 0 && s.greedy[j-1] >= i {
			j--
		}
		s.greedyFrom[i] = j
	}
	return s
}

// settle fills in bound and tail for a state whose logScore and next are
// set. A child that follows the preferred option passes its parent's bound
// in known; the completion is the same sequence of additions.
func (s *searcher) settle(st *state, known *float64) *state {
	for st.next < len(s.boundaries) && s.boundaries[st.next].Forced {
		st.next++
	}
	st.complete = st.next == len(s.boundaries)
	st.tail = s.greedy[s.greedyFrom[st.next]:]
	switch {
	case st.complete:
		st.bound = st.logScore
	case known != nil:
		st.bound = *known
	default:
		b := st.logScore
		for i := st.next; i < len(s.boundaries); i++ {
			switch {
			case s.boundaries[i].Forced:
			case s.prefer[i]:
				b += s.logCut[i]
			default:
				b += s.logKeep[i]
			}
		}
		st.bound = b
	}
	return st
}

func (s *searcher) root() *state {
	return s.settle(&state{}, nil)
}

func (s *searcher) children(st *state) (keep, cut *state) {
	i := st.next
	keepBound, cutBound := &st.bound, (*float64)(nil)
	if s.prefer[i] {
		keepBound, cutBound = nil, &st.bound
	}

	keep = s.settle(&state{
		next:     i + 1,
		logScore: st.logScore + s.logKeep[i],
		cuts:     st.cuts,
	}, keepBound)

	cuts := make([]int, len(st.cuts), len(st.cuts)+1)
	copy(cuts, st.cuts)
	cut = s.settle(&state{
		next:     i + 1,
		logScore: st.logScore + s.logCut[i],
		cuts:     append(cuts, i),
	}, cutBound)
	return keep, cut
}

// run expands best-first from the given roots until k complete states have
// been dequeued or the frontier is empty.
func (s *searcher) run(roots []*state, k int) []Partition {
	f := make(frontier, 0, 2*k)
	for _, r := range roots {
		f = append(f, r)
	}
	heap.Init(&f)

	out := make([]Partition, 0, min(k, 64))
	for f.Len() > 0 && len(out) < k {
		st := heap.Pop(&f).(*state)
		if st.complete {
			out = append(out, Partition{n: s.n, cuts: st.cuts, logScore: st.logScore})
			continue
		}
		keep, cut := s.children(st)
		heap.Push(&f, keep)
		heap.Push(&f, cut)
	}
	return out
}

// Search returns the k highest-scoring partitions of n strokes given their
// n-1 boundaries, best first, in TieFewerGroupsThenLexical order.
//
// The search is best-first over partial partitions. A partial state is ranked
// by its best completion, which no other completion of the state can
// precede. The first k complete states dequeued are therefore the global best
// k, and each one costs at most n expansions, tied scores included. Only the
// explored frontier is materialised, roughly k times n states.
//
// n == 0 yields no partitions; n == 1 yields one partition with score 1.
// When fewer than k partitions are reachable, all of them are returned.
func Search(n int, boundaries []Boundary, k int) ([]Partition, error) {
	if err := checkCount(n, boundaries); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, k)
	}
	if n == 0 {
		return []Partition{}, nil
	}

	s := newSearcher(n, boundaries)
	return s.run([]*state{s.root()}, k), nil
}

// SearchSharded is Search with the first undecided boundary fixed per shard
// and the two shards searched concurrently. Shard results are merged in the
// same order and truncated to k, so the result equals Search.
func SearchSharded(ctx context.Context, n int, boundaries []Boundary, k int) ([]Partition, error) {
	if err := checkCount(n, boundaries); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, k)
	}
	if n == 0 {
		return []Partition{}, nil
	}

	s := newSearcher(n, boundaries)
	root := s.root()
	if root.complete {
		return s.run([]*state{root}, k), nil
	}

	keep, cut := s.children(root)
	shards := []*state{keep, cut}
	results := make([][]Partition, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = s.run([]*state{shard}, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Partition, 0, len(results[0])+len(results[1]))
	merged = append(merged, results[0]...)
	merged = append(merged, results[1]...)
	sortPartitions(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// sortPartitions orders complete partitions by the search order.
func sortPartitions(ps []Partition) {
	sort.Slice(ps, func(i, j int) bool { return Less(ps[i], ps[j]) })
}

// Less reports whether a ranks before b in search order.
func Less(a, b Partition) bool {
	x := state{logScore: a.logScore, bound: a.logScore, cuts: a.cuts, complete: true}
	y := state{logScore: b.logScore, bound: b.logScore, cuts: b.cuts, complete: true}
	return before(&x, &y)
}
