package partition

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probs(ps ...float64) []Boundary {
	out := make([]Boundary, len(ps))
	for i, p := range ps {
		out[i] = Boundary{Probability: p}
	}
	return out
}

func randomBoundaries(r *rand.Rand, n int) []Boundary {
	if n <= 1 {
		return []Boundary{}
	}
	out := make([]Boundary, n-1)
	for i := range out {
		out[i] = Boundary{Probability: r.Float64()}
	}
	return out
}

// bruteForce scores every cut pattern and sorts them in search order.
func bruteForce(t *testing.T, n int, boundaries []Boundary) []Partition {
	t.Helper()
	if n == 0 {
		return []Partition{}
	}
	nb := n - 1
	var all []Partition
	for mask := 0; mask < 1<<nb; mask++ {
		var cuts []int
		for i := 0; i < nb; i++ {
			if mask&(1<<i) != 0 {
				cuts = append(cuts, i)
			}
		}
		p, err := FromCuts(n, cuts)
		require.NoError(t, err)
		p, err = p.Rescore(boundaries)
		require.NoError(t, err)
		if math.IsInf(p.LogScore(), -1) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return Less(all[i], all[j]) })
	return all
}

func groupsOf(ps []Partition) [][][]int {
	out := make([][][]int, len(ps))
	for i, p := range ps {
		out[i] = p.Indices()
	}
	return out
}

func TestPartition_Groups(t *testing.T) {
	p, err := FromCuts(5, []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, []Group{{0, 2}, {2, 3}, {3, 5}}, p.Groups())
	assert.Equal(t, [][]int{{0, 1}, {2}, {3, 4}}, p.Indices())
	assert.Equal(t, 3, p.NumGroups())
	assert.Equal(t, "5:1,2", p.Key())
	assert.Equal(t, "[[0 1] [2] [3 4]]", p.String())
	assert.Equal(t, 1.0, p.Score())

	empty, err := FromCuts(0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumGroups())
	assert.Nil(t, empty.Groups())
}

func TestFromCuts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		n    int
		cuts []int
	}{
		{name: "negative strokes", n: -1},
		{name: "cut past last boundary", n: 3, cuts: []int{2}},
		{name: "unsorted", n: 4, cuts: []int{1, 0}},
		{name: "duplicate", n: 4, cuts: []int{1, 1}},
		{name: "negative cut", n: 4, cuts: []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCuts(tt.n, tt.cuts)
			assert.ErrorIs(t, err, ErrInvalidGroups)
		})
	}
}

func TestSearch_EmptyRecording(t *testing.T) {
	got, err := Search(0, nil, DefaultLimit)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearch_SingleStroke(t *testing.T) {
	got, err := Search(1, nil, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [][]int{{0}}, got[0].Indices())
	assert.Equal(t, 0.0, got[0].LogScore())
	assert.Equal(t, 1.0, got[0].Score())
}

func TestSearch_ThreeStrokeRanking(t *testing.T) {
	got, err := Search(3, probs(0.9, 0.1), DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, [][][]int{
		{{0, 1}, {2}},
		{{0, 1, 2}},
		{{0}, {1}, {2}},
		{{0}, {1, 2}},
	}, groupsOf(got))

	assert.InDelta(t, 0.81, got[0].Score(), 1e-9)
	assert.InDelta(t, 0.09, got[1].Score(), 1e-9)
	assert.InDelta(t, 0.09, got[2].Score(), 1e-9)
	assert.InDelta(t, 0.01, got[3].Score(), 1e-9)
}

func TestSearch_TieBreak(t *testing.T) {
	// every partition scores exactly 0.25
	got, err := Search(3, probs(0.5, 0.5), DefaultLimit)
	require.NoError(t, err)

	assert.Equal(t, [][][]int{
		{{0, 1, 2}},
		{{0}, {1, 2}},
		{{0, 1}, {2}},
		{{0}, {1}, {2}},
	}, groupsOf(got))
	for _, p := range got {
		assert.Equal(t, got[0].LogScore(), p.LogScore())
	}
}

func TestSearch_ExtremeScores(t *testing.T) {
	boundaries := probs(0.8, 0.3, 0.6, 0.95)
	got, err := Search(5, boundaries, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, 16)

	var noCut, allCut Partition
	for _, p := range got {
		switch p.NumGroups() {
		case 1:
			noCut = p
		case 5:
			allCut = p
		}
		assert.Greater(t, p.Score(), 0.0)
		assert.LessOrEqual(t, p.Score(), 1.0)
	}

	assert.InDelta(t, 0.8*0.3*0.6*0.95, noCut.Score(), 1e-12)
	assert.InDelta(t, 0.2*0.7*0.4*0.05, allCut.Score(), 1e-12)
}

func TestSearch_Exhaustive(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for n := 1; n <= 8; n++ {
		boundaries := randomBoundaries(r, n)
		total := 1 << (n - 1)

		got, err := Search(n, boundaries, total+10)
		require.NoError(t, err)
		require.Len(t, got, total, "n=%d", n)

		seen := make(map[string]bool)
		for i, p := range got {
			assert.False(t, seen[p.Key()], "duplicate partition %s", p)
			seen[p.Key()] = true
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].LogScore(), p.LogScore())
			}
		}
		assert.Equal(t, groupsOf(bruteForce(t, n, boundaries)), groupsOf(got))
	}
}

func TestSearch_TopKMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 2 + r.Intn(10)
		boundaries := randomBoundaries(r, n)
		if trial%4 == 0 {
			boundaries[0].Probability = 1
			boundaries[len(boundaries)-1].Probability = 0
		}
		k := 1 + r.Intn(20)

		got, err := Search(n, boundaries, k)
		require.NoError(t, err)

		want := bruteForce(t, n, boundaries)
		if len(want) > k {
			want = want[:k]
		}
		require.Equal(t, groupsOf(want), groupsOf(got), "trial %d", trial)
		for i := range want {
			assert.Equal(t, want[i].LogScore(), got[i].LogScore())
		}
	}
}

func TestSearch_ForcedBoundary(t *testing.T) {
	boundaries := probs(0.4, 0.5, 0.7)
	boundaries[1].Forced = true

	got, err := Search(4, boundaries, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, 4, "one forced boundary leaves 2^2 reachable partitions")

	for _, p := range got {
		assert.NotContains(t, p.Cuts(), 1)
	}
	assert.Equal(t, groupsOf(bruteForce(t, 4, boundaries)), groupsOf(got))
}

func TestSearch_AllForced(t *testing.T) {
	boundaries := []Boundary{{Forced: true}, {Forced: true}}
	got, err := Search(3, boundaries, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [][]int{{0, 1, 2}}, got[0].Indices())
	assert.Equal(t, 1.0, got[0].Score())
}

func TestSearch_Errors(t *testing.T) {
	_, err := Search(3, probs(0.5), 10)
	assert.ErrorIs(t, err, ErrBoundaryCount)

	_, err = Search(0, probs(0.5), 10)
	assert.ErrorIs(t, err, ErrBoundaryCount)

	_, err = Search(2, probs(0.5), 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestSearch_LargeRecording(t *testing.T) {
	// 2^59 cut patterns; only the frontier is explored
	r := rand.New(rand.NewSource(3))
	boundaries := randomBoundaries(r, 60)

	got, err := Search(60, boundaries, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, got, DefaultLimit)

	best := 0.0
	var bestCuts []int
	for i, b := range boundaries {
		p := clamp(b.Probability)
		if p >= 1-p {
			best += math.Log(p)
		} else {
			best += math.Log(1 - p)
			bestCuts = append(bestCuts, i)
		}
	}
	assert.InDelta(t, best, got[0].LogScore(), 1e-9)
	assert.Equal(t, bestCuts, got[0].Cuts())
}

// searchWithin runs Search and fails the test if it takes longer than d.
func searchWithin(t *testing.T, d time.Duration, n int, boundaries []Boundary, k int) []Partition {
	t.Helper()
	type result struct {
		ps  []Partition
		err error
	}
	done := make(chan result, 1)
	go func() {
		ps, err := Search(n, boundaries, k)
		done <- result{ps, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.ps
	case <-time.After(d):
		t.Fatalf("Search(n=%d, k=%d) did not finish within %s", n, k, d)
		return nil
	}
}

// cutSets lists the first k cut sets over m boundaries ordered by size, then
// lexically.
func cutSets(m, k int) [][]int {
	var out [][]int
	var walk func(size, from int, cur []int)
	walk = func(size, from int, cur []int) {
		if len(out) == k {
			return
		}
		if len(cur) == size {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for c := from; c < m; c++ {
			walk(size, c+1, append(cur, c))
		}
	}
	for size := 0; size <= m && len(out) < k; size++ {
		walk(size, 0, nil)
	}
	return out
}

func TestSearch_AllBoundariesTied(t *testing.T) {
	const n = 40
	boundaries := make([]Boundary, n-1)
	for i := range boundaries {
		boundaries[i] = Boundary{Probability: 0.5}
	}

	got := searchWithin(t, 5*time.Second, n, boundaries, DefaultLimit)
	require.Len(t, got, DefaultLimit)

	want := cutSets(n-1, DefaultLimit)
	for i, p := range got {
		require.Equal(t, want[i], p.Cuts(), "partition %d", i)
		assert.Equal(t, got[0].LogScore(), p.LogScore())
	}
}

func TestSearch_NearlyTiedBoundaries(t *testing.T) {
	const n = 30
	boundaries := make([]Boundary, n-1)
	for i := range boundaries {
		boundaries[i] = Boundary{Probability: 0.5 + 1e-12*float64(i)}
	}

	got := searchWithin(t, 5*time.Second, n, boundaries, 10)
	require.Len(t, got, 10)
	assert.Empty(t, got[0].Cuts())
	for i := 1; i < len(got); i++ {
		assert.True(t, Less(got[i-1], got[i]), "partition %d out of order", i)
	}

	// the cheapest single cut is at the boundary closest to 0.5
	assert.Equal(t, []int{0}, got[1].Cuts())
}

func TestSearch_SomeBoundariesTied(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for trial := 0; trial < 20; trial++ {
		n := 2 + r.Intn(9)
		boundaries := randomBoundaries(r, n)
		for i := range boundaries {
			if r.Intn(2) == 0 {
				boundaries[i].Probability = 0.5
			}
		}
		k := 1 + r.Intn(1<<(n-1))

		got, err := Search(n, boundaries, k)
		require.NoError(t, err)

		want := bruteForce(t, n, boundaries)
		if len(want) > k {
			want = want[:k]
		}
		require.Equal(t, groupsOf(want), groupsOf(got), "trial %d", trial)
	}
}

func TestSearchSharded_MatchesSearch(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 15; trial++ {
		n := r.Intn(10)
		boundaries := randomBoundaries(r, n)
		if n > 2 && trial%3 == 0 {
			boundaries[0].Forced = true
		}
		k := 1 + r.Intn(40)

		want, err := Search(n, boundaries, k)
		require.NoError(t, err)
		got, err := SearchSharded(context.Background(), n, boundaries, k)
		require.NoError(t, err)

		assert.Equal(t, groupsOf(want), groupsOf(got), "trial %d", trial)
	}
}

func TestSearchSharded_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SearchSharded(ctx, 4, probs(0.1, 0.2, 0.3), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore_ForcedCut(t *testing.T) {
	boundaries := []Boundary{{Probability: 0.3, Forced: true}}
	p, err := FromCuts(2, []int{0})
	require.NoError(t, err)

	s, err := Score(boundaries, p)
	require.NoError(t, err)
	assert.True(t, math.IsInf(s, -1))
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("fewer_groups_then_lexical")
	require.NoError(t, err)
	assert.Equal(t, TieFewerGroupsThenLexical, tb)
	assert.Equal(t, "fewer_groups_then_lexical", tb.String())

	_, err = ParseTieBreak("random")
	assert.Error(t, err)
}
