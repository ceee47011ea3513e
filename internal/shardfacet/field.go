// Package shardfacet merges facet counts reported independently by several
// shards into one ranking and works out which (shard, value) pairs must be
// re-queried before that ranking can be trusted.
//
// A Field is driven by a single goroutine: the caller collects shard
// responses and feeds them in with Add, then asks NeedRefinement and
// RefineList. Nothing here does network I/O.
package shardfacet

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

// ShardFacetCount is the running total of one value across shards.
type ShardFacetCount struct {
	// Name is the readable value as shards report it.
	Name string
	// Indexed is the value in indexed form; rankings order by it.
	Indexed string
	// TermNum is assigned in order of first sighting and never changes.
	TermNum int
	Count   int64
}

type shard struct {
	// counted holds the TermNums this shard has reported. nil marks a shard
	// whose request failed.
	counted    *bitset.BitSet
	missingMax int64
	added      bool
	refine     []string
}

// Field accumulates shard responses for one facet field.
type Field struct {
	name   string
	ft     index.FieldType
	params Params

	shards []shard
	terms  []*ShardFacetCount
	byName map[string]*ShardFacetCount

	missing            int64
	missingMaxPossible int64
	needRefinement     bool
}

// NewField returns an empty aggregate for numShards shards. ft converts
// reported names to indexed form; nil means names are used as is.
func NewField(name string, ft index.FieldType, numShards int, p Params) *Field {
	if ft == nil {
		ft = index.StrField{}
	}
	return &Field{
		name:   name,
		ft:     ft,
		params: p,
		shards: make([]shard, numShards),
		byName: make(map[string]*ShardFacetCount),
	}
}

func (f *Field) Name() string   { return f.name }
func (f *Field) NumShards() int { return len(f.shards) }
func (f *Field) Params() Params { return f.params }
func (f *Field) Missing() int64 { return f.missing }
func (f *Field) NumTerms() int  { return len(f.terms) }

// Add records shard's response. numRequested is the limit the shard was
// asked for, negative meaning unlimited. A nil counts records a failed
// shard: it contributes nothing and is never asked to refine.
//
// Entries with an empty name or the Missing flag are summed into the
// missing bucket.
func (f *Field) Add(shardIndex int, counts []facet.Entry, numRequested int) {
	s := &f.shards[shardIndex]
	s.added = true
	if counts != nil {
		s.counted = bitset.New(uint(len(f.terms) + len(counts)))
	}

	var last int64
	received := 0
	for _, e := range counts {
		if e.Missing || e.Value == "" {
			f.missing += e.Count
			continue
		}
		sfc := f.lookup(e.Value)
		sfc.Count += e.Count
		s.counted.Set(uint(sfc.TermNum))
		last = e.Count
		received++
	}

	// A shard that returned everything it was asked for may still hold
	// unseen values as large as its last count. One that returned fewer
	// only holds values below the mincount it applied.
	if numRequested < 0 || (numRequested != 0 && received < numRequested) {
		last = max(0, int64(f.params.InitialMincount)-1)
	}
	s.missingMax = last
	f.missingMaxPossible += last
}

func (f *Field) lookup(name string) *ShardFacetCount {
	if sfc, ok := f.byName[name]; ok {
		return sfc
	}
	indexed := name
	if b, err := f.ft.ToIndexed(name); err == nil {
		indexed = string(b)
	}
	sfc := &ShardFacetCount{Name: name, Indexed: indexed, TermNum: len(f.terms)}
	f.terms = append(f.terms, sfc)
	f.byName[name] = sfc
	return sfc
}

// Complete reports whether every shard has been added, failed ones
// included.
func (f *Field) Complete() bool {
	for i := range f.shards {
		if !f.shards[i].added {
			return false
		}
	}
	return true
}

// CountSorted returns every value by count descending, ties by indexed
// value ascending.
func (f *Field) CountSorted() []*ShardFacetCount {
	out := append([]*ShardFacetCount(nil), f.terms...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Indexed < out[j].Indexed
	})
	return out
}

// LexSorted returns every value by indexed value ascending.
func (f *Field) LexSorted() []*ShardFacetCount {
	out := append([]*ShardFacetCount(nil), f.terms...)
	sort.Slice(out, func(i, j int) bool { return out[i].Indexed < out[j].Indexed })
	return out
}

// MaxPossible is the most shardIndex could add to sfc: zero if the shard
// reported the value or failed, its missingMax otherwise.
func (f *Field) MaxPossible(sfc *ShardFacetCount, shardIndex int) int64 {
	s := &f.shards[shardIndex]
	if !f.unreported(s, sfc) {
		return 0
	}
	return s.missingMax
}

// MissingMaxPossible bounds the total count of a value no shard reported.
func (f *Field) MissingMaxPossible() int64 {
	return f.missingMaxPossible
}

// unreported reports whether s answered but did not include sfc.
func (f *Field) unreported(s *shard, sfc *ShardFacetCount) bool {
	return s.counted != nil && !s.counted.Test(uint(sfc.TermNum))
}

// upperBound is sfc's count plus everything the shards that did not report
// it could still add.
func (f *Field) upperBound(sfc *ShardFacetCount) int64 {
	bound := sfc.Count
	for i := range f.shards {
		bound += f.MaxPossible(sfc, i)
	}
	return bound
}

// flag queues sfc on every shard that did not report it and could still
// contribute.
func (f *Field) flag(sfc *ShardFacetCount) {
	for i := range f.shards {
		s := &f.shards[i]
		if f.unreported(s, sfc) && s.missingMax > 0 {
			s.refine = append(s.refine, sfc.Name)
			f.needRefinement = true
		}
	}
}

// window is offset+limit, or -1 when unlimited.
func (f *Field) window() int {
	if f.params.Limit < 0 {
		return -1
	}
	return f.params.Offset + f.params.Limit
}

// PlanRefinement computes the per-shard refinement lists from the
// responses added so far, replacing any earlier plan.
func (f *Field) PlanRefinement() {
	f.needRefinement = false
	for i := range f.shards {
		f.shards[i].refine = nil
	}
	// Shards applying the exact mincount cannot hide a value that belongs
	// in an index-ordered window, and ShardRequest asks for every value
	// when the mincount is higher.
	if f.params.Sort == facet.SortIndex {
		return
	}
	f.planCountOrder()
}

func (f *Field) planCountOrder() {
	counts := f.CountSorted()
	ntop := len(counts)
	if w := f.window(); w >= 0 && w < ntop {
		ntop = w
	}
	if ntop == 0 {
		return
	}
	smallest := counts[ntop-1].Count
	for i, sfc := range counts {
		if i >= ntop {
			// Later values only have lower counts.
			if sfc.Count+f.missingMaxPossible < smallest {
				break
			}
			if f.upperBound(sfc) < smallest {
				continue
			}
		}
		f.flag(sfc)
	}
}

// NeedRefinement reports whether the last PlanRefinement produced any work.
func (f *Field) NeedRefinement() bool {
	return f.needRefinement
}

// RefineList returns the values shardIndex must count exactly.
func (f *Field) RefineList(shardIndex int) []string {
	return f.shards[shardIndex].refine
}

// AddRefinement folds in exact counts returned for a refine list and marks
// those values as reported by the shard.
func (f *Field) AddRefinement(shardIndex int, counts []facet.Entry) {
	s := &f.shards[shardIndex]
	if s.counted == nil {
		s.counted = bitset.New(uint(len(f.terms)))
	}
	for _, e := range counts {
		if e.Missing || e.Value == "" {
			f.missing += e.Count
			continue
		}
		sfc := f.lookup(e.Value)
		if s.counted.Test(uint(sfc.TermNum)) {
			continue
		}
		sfc.Count += e.Count
		s.counted.Set(uint(sfc.TermNum))
	}
	s.refine = nil
}

// Result returns the merged ranking with readable values, cut to the
// request's offset, limit and mincount. The missing bucket comes last when
// requested.
func (f *Field) Result() []facet.Entry {
	var ranked []*ShardFacetCount
	if f.params.Sort == facet.SortIndex {
		ranked = f.LexSorted()
	} else {
		ranked = f.CountSorted()
	}

	out := make([]facet.Entry, 0)
	skip := f.params.Offset
	for _, sfc := range ranked {
		if sfc.Count < int64(f.params.Mincount) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if f.params.Limit >= 0 && len(out) >= f.params.Limit {
			break
		}
		out = append(out, facet.Entry{Value: sfc.Name, Count: sfc.Count})
	}
	if f.params.Missing {
		out = append(out, facet.Entry{Count: f.missing, Missing: true})
	}
	return out
}
