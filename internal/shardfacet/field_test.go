package shardfacet

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

func entries(pairs ...any) []facet.Entry {
	out := make([]facet.Entry, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, facet.Entry{Value: pairs[i].(string), Count: int64(pairs[i+1].(int))})
	}
	return out
}

func names(sfcs []*ShardFacetCount) []string {
	out := make([]string, len(sfcs))
	for i, s := range sfcs {
		out[i] = fmt.Sprintf("%s:%d", s.Name, s.Count)
	}
	return out
}

func threeShards(t *testing.T) *Field {
	t.Helper()
	f := NewField("color", index.StrField{}, 3, Params{
		Limit: 2, Mincount: 1, InitialMincount: 1, Sort: facet.SortCount,
	})
	f.Add(0, entries("red", 5, "blue", 3), 2)
	f.Add(1, entries("green", 6, "red", 4), 2)
	f.Add(2, entries("blue", 2, "red", 1), 2)
	return f
}

func TestThreeShardScenario(t *testing.T) {
	f := threeShards(t)
	assert.True(t, f.Complete())
	assert.Equal(t, []string{"red:10", "green:6", "blue:5"}, names(f.CountSorted()))
	assert.Equal(t, []string{"blue:5", "green:6", "red:10"}, names(f.LexSorted()))

	// Each shard returned all it was asked for, so its last count bounds
	// what it may be hiding.
	assert.Equal(t, int64(3+4+1), f.MissingMaxPossible())

	byName := map[string]*ShardFacetCount{}
	for _, sfc := range f.CountSorted() {
		byName[sfc.Name] = sfc
	}
	assert.Equal(t, int64(3), f.MaxPossible(byName["green"], 0))
	assert.Equal(t, int64(0), f.MaxPossible(byName["green"], 1))
	assert.Equal(t, int64(1), f.MaxPossible(byName["green"], 2))
	assert.Equal(t, int64(4), f.MaxPossible(byName["blue"], 1))
	assert.Equal(t, int64(0), f.MaxPossible(byName["red"], 1))
}

func TestThreeShardRefinement(t *testing.T) {
	f := threeShards(t)
	f.PlanRefinement()
	require.True(t, f.NeedRefinement())
	assert.Equal(t, []string{"green"}, f.RefineList(0))
	assert.Equal(t, []string{"blue"}, f.RefineList(1))
	assert.Equal(t, []string{"green"}, f.RefineList(2))

	f.AddRefinement(0, entries("green", 1))
	f.AddRefinement(1, entries("blue", 4))
	f.AddRefinement(2, entries("green", 0))
	for i := 0; i < 3; i++ {
		assert.Empty(t, f.RefineList(i))
	}

	assert.Equal(t, []facet.Entry{
		{Value: "red", Count: 10},
		{Value: "blue", Count: 9},
	}, f.Result())

	f.PlanRefinement()
	assert.False(t, f.NeedRefinement())
}

func TestTermNumsAreStable(t *testing.T) {
	f := NewField("color", nil, 2, Params{Limit: 10, Sort: facet.SortCount})
	f.Add(0, entries("b", 1, "a", 1), 10)
	f.Add(1, entries("a", 2, "c", 7), 10)

	got := map[string]int{}
	for _, sfc := range f.LexSorted() {
		got[sfc.Name] = sfc.TermNum
	}
	assert.Equal(t, map[string]int{"b": 0, "a": 1, "c": 2}, got)
	assert.Equal(t, 3, f.NumTerms())
	assert.Equal(t, []string{"c:7", "a:3", "b:1"}, names(f.CountSorted()))
}

func TestShortResponseBoundsByMincount(t *testing.T) {
	tests := []struct {
		name            string
		numRequested    int
		initialMincount int
		want            int64
	}{
		{"short response", 5, 1, 0},
		{"short response with mincount 3", 5, 3, 2},
		{"unlimited request", -1, 1, 0},
		{"full response", 2, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewField("color", nil, 1, Params{Limit: 2, InitialMincount: tt.initialMincount})
			f.Add(0, entries("red", 9, "blue", 4), tt.numRequested)
			assert.Equal(t, tt.want, f.MissingMaxPossible())
		})
	}
}

func TestFailedShardIsNeverRefined(t *testing.T) {
	f := NewField("color", nil, 2, Params{Limit: 1, Mincount: 1, InitialMincount: 1, Sort: facet.SortCount})
	f.Add(0, entries("red", 5, "blue", 3), 2)
	f.Add(1, nil, 2)

	assert.True(t, f.Complete())
	assert.Equal(t, int64(3), f.MissingMaxPossible())
	for _, sfc := range f.CountSorted() {
		assert.Zero(t, f.MaxPossible(sfc, 1))
	}
	f.PlanRefinement()
	assert.False(t, f.NeedRefinement())
	assert.Empty(t, f.RefineList(1))
	assert.Equal(t, []facet.Entry{{Value: "red", Count: 5}}, f.Result())
}

func TestMissingEntriesAreSummed(t *testing.T) {
	f := NewField("color", nil, 2, Params{Limit: -1, Missing: true, Sort: facet.SortCount})
	f.Add(0, []facet.Entry{{Value: "red", Count: 2}, {Count: 4, Missing: true}}, -1)
	// An empty name is folded into missing even without the flag.
	f.Add(1, []facet.Entry{{Value: "", Count: 3}, {Value: "red", Count: 1}}, -1)

	assert.Equal(t, int64(7), f.Missing())
	assert.Equal(t, 1, f.NumTerms())
	assert.Equal(t, []facet.Entry{
		{Value: "red", Count: 3},
		{Count: 7, Missing: true},
	}, f.Result())
}

func TestIntValuesRankByIndexedOrder(t *testing.T) {
	f := NewField("size", index.IntField{}, 1, Params{Limit: -1, Sort: facet.SortIndex})
	f.Add(0, entries("10", 1, "9", 1, "-5", 1), -1)
	assert.Equal(t, []string{"-5:1", "9:1", "10:1"}, names(f.LexSorted()))
	assert.Equal(t, []string{"-5:1", "9:1", "10:1"}, names(f.CountSorted()))
}

func TestIndexOrderRefinement(t *testing.T) {
	t.Run("exact mincount needs none", func(t *testing.T) {
		f := NewField("color", nil, 2, Params{Limit: 2, Mincount: 1, InitialMincount: 1, Sort: facet.SortIndex})
		f.Add(0, entries("a", 1, "b", 1), 2)
		f.Add(1, entries("a", 1, "c", 1), 2)
		f.PlanRefinement()
		assert.False(t, f.NeedRefinement())
		assert.Equal(t, []facet.Entry{{Value: "a", Count: 2}, {Value: "b", Count: 1}}, f.Result())
	})

	t.Run("higher mincount asks shards for everything", func(t *testing.T) {
		p := NewParams(facet.Request{Limit: 1, Mincount: 3, Sort: facet.SortIndex})
		sr := p.ShardRequest(1.5, 10, 0)
		require.Equal(t, ShardRequest{Limit: -1, Mincount: 1}, sr)

		f := NewField("color", nil, 2, p)
		f.Add(0, entries("a", 1, "b", 4), sr.Limit)
		f.Add(1, entries("b", 2, "c", 3), sr.Limit)
		assert.Zero(t, f.MissingMaxPossible())
		f.PlanRefinement()
		assert.False(t, f.NeedRefinement())
		assert.Equal(t, []facet.Entry{{Value: "b", Count: 6}}, f.Result())
	})
}

func TestShardRequest(t *testing.T) {
	tests := []struct {
		name string
		req  facet.Request
		max  int
		want ShardRequest
	}{
		{"count order over-requests", facet.Request{Offset: 2, Limit: 10, Mincount: 5, Sort: facet.SortCount}, 0, ShardRequest{Limit: 28, Mincount: 1}},
		{"count order unlimited", facet.Request{Limit: -1, Sort: facet.SortCount}, 0, ShardRequest{Limit: -1, Mincount: 0}},
		{"count order nothing wanted", facet.Request{Limit: 0, Sort: facet.SortCount}, 0, ShardRequest{Limit: 0, Mincount: 0}},
		{"index order exact mincount", facet.Request{Offset: 1, Limit: 3, Mincount: 1, Sort: facet.SortIndex}, 0, ShardRequest{Limit: 4, Mincount: 1}},
		{"default sort by limit", facet.Request{Limit: 4}, 0, ShardRequest{Limit: 16, Mincount: 0}},
		{"over-request cut to shard cap", facet.Request{Limit: 5, Sort: facet.SortCount}, 10, ShardRequest{Limit: 10, Mincount: 0}},
		{"window above shard cap asks for all", facet.Request{Offset: 8, Limit: 5, Sort: facet.SortCount}, 10, ShardRequest{Limit: -1, Mincount: 0}},
		{"index window above shard cap", facet.Request{Limit: 12, Mincount: 1, Sort: facet.SortIndex}, 10, ShardRequest{Limit: -1, Mincount: 1}},
		{"within shard cap unchanged", facet.Request{Limit: 2, Sort: facet.SortCount}, 100, ShardRequest{Limit: 13, Mincount: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewParams(tt.req).ShardRequest(1.5, 10, tt.max))
		})
	}
}

func TestResultWindow(t *testing.T) {
	f := NewField("color", nil, 1, Params{Offset: 1, Limit: 2, Mincount: 2, Sort: facet.SortCount})
	f.Add(0, entries("a", 9, "b", 7, "c", 5, "d", 1), -1)
	assert.Equal(t, []facet.Entry{{Value: "b", Count: 7}, {Value: "c", Count: 5}}, f.Result())

	f = NewField("color", nil, 1, Params{Offset: 5, Limit: 2, Sort: facet.SortCount})
	f.Add(0, entries("a", 9), -1)
	assert.Equal(t, []facet.Entry{}, f.Result())
}

// shardTopN is what a shard answers for a count-sorted request: its values
// with count >= mincount, best first, cut to n.
func shardTopN(counts map[string]int, n, mincount int) []facet.Entry {
	var out []facet.Entry
	for v, c := range counts {
		if c >= mincount {
			out = append(out, facet.Entry{Value: v, Count: int64(c)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []facet.Entry{}
	}
	return out
}

func TestRandomizedBoundSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	certified := 0

	for round := 0; round < 300; round++ {
		numShards := 2 + rng.Intn(4)
		numValues := 10 + rng.Intn(30)
		truth := make([]map[string]int, numShards)
		totals := map[string]int{}
		for s := range truth {
			truth[s] = map[string]int{}
			for k := 0; k < numValues; k++ {
				c := rng.Intn(60/(k+1) + 2)
				if c > 0 {
					v := fmt.Sprintf("v%02d", k)
					truth[s][v] = c
					totals[v] += c
				}
			}
		}

		p := Params{
			Offset:          rng.Intn(3),
			Limit:           1 + rng.Intn(5),
			Mincount:        1,
			InitialMincount: 1,
			Sort:            facet.SortCount,
		}
		numRequested := 1 + rng.Intn(8)
		f := NewField("v", nil, numShards, p)
		failed := -1
		if rng.Intn(5) == 0 {
			failed = rng.Intn(numShards)
		}
		for s := range truth {
			if s == failed {
				f.Add(s, nil, numRequested)
				continue
			}
			f.Add(s, shardTopN(truth[s], numRequested, p.InitialMincount), numRequested)
		}

		// No unreported value may exceed the bound its shard advertises.
		seen := map[string]bool{}
		for _, sfc := range f.CountSorted() {
			seen[sfc.Name] = true
			for s := range truth {
				if s == failed {
					continue
				}
				if f.MaxPossible(sfc, s) == 0 && f.shards[s].counted.Test(uint(sfc.TermNum)) {
					continue
				}
				assert.LessOrEqual(t, int64(truth[s][sfc.Name]), f.MaxPossible(sfc, s),
					"round %d shard %d value %s", round, s, sfc.Name)
			}
		}
		for v := range totals {
			if seen[v] {
				continue
			}
			var live int64
			for s := range truth {
				if s != failed {
					live += int64(truth[s][v])
				}
			}
			assert.LessOrEqual(t, live, f.MissingMaxPossible(), "round %d unseen %s", round, v)
		}

		f.PlanRefinement()
		if f.NeedRefinement() {
			for s := range truth {
				list := f.RefineList(s)
				if len(list) == 0 {
					continue
				}
				require.NotEqual(t, failed, s)
				exact := make([]facet.Entry, 0, len(list))
				for _, v := range list {
					exact = append(exact, facet.Entry{Value: v, Count: int64(truth[s][v])})
				}
				f.AddRefinement(s, exact)
			}
			f.PlanRefinement()
			require.False(t, f.NeedRefinement(), "round %d still needs refinement", round)
		}

		ranked := f.CountSorted()
		ntop := min(len(ranked), p.Offset+p.Limit)
		if ntop == 0 || f.MissingMaxPossible() >= ranked[ntop-1].Count {
			continue
		}
		certified++

		// With the bound below the window, the merged window must match
		// the true ranking over the shards that answered.
		live := map[string]int{}
		for s := range truth {
			if s == failed {
				continue
			}
			for v, c := range truth[s] {
				live[v] += c
			}
		}
		want := shardTopN(live, p.Offset+p.Limit, p.Mincount)
		if p.Offset >= len(want) {
			want = []facet.Entry{}
		} else {
			want = want[p.Offset:]
		}
		assert.Equal(t, want, f.Result(), "round %d params %+v", round, p)
	}
	assert.Positive(t, certified)
}
