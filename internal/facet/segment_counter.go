package facet

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

// prefixSentinel sorts after every value that starts with the prefix it is
// appended to.
var prefixSentinel = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// cancelCheckInterval is how many documents are counted between context
// checks.
const cancelCheckInterval = 1 << 14

// segmentCounts holds one segment's counts for ordinals [start, end).
type segmentCounts struct {
	sv     *index.SortedValues
	start  int
	counts []int64
	// pos is the merge cursor into counts.
	pos int
}

// ordRange returns the ordinal range holding values that start with prefix.
// Without a prefix the range covers the whole dictionary, missing slot
// included.
func ordRange(sv *index.SortedValues, prefix []byte) (start, end int) {
	if len(prefix) == 0 {
		return 0, sv.NumOrds()
	}
	start = sv.LookupTerm(prefix)
	if start < 0 {
		start = -start - 1
	}
	upper := make([]byte, 0, len(prefix)+len(prefixSentinel))
	upper = append(append(upper, prefix...), prefixSentinel...)
	end = sv.LookupTerm(upper)
	if end < 0 {
		end = -end - 1
	}
	return start, end
}

// countSegment counts how many live documents of docs fall on each ordinal
// of leaf's dictionary for field.
func countSegment(ctx context.Context, leaf index.Leaf, field string, prefix []byte, docs docset.DocSet) (*segmentCounts, error) {
	seg := leaf.Segment
	sv, err := seg.SortedValues(field)
	if err != nil {
		return nil, err
	}
	start, end := ordRange(sv, prefix)
	sc := &segmentCounts{sv: sv, start: start, counts: make([]int64, end-start)}
	if end <= start {
		return sc, nil
	}

	filter := docs.TopFilter(leaf.DocBase, seg.MaxDoc())
	filter.AndNot(seg.Deleted())

	ords := sv.Ords()
	n := 0
	var cancelErr error
	filter.ForEach(func(doc uint32) bool {
		if n++; n%cancelCheckInterval == 0 {
			if cancelErr = ctx.Err(); cancelErr != nil {
				return false
			}
		}
		ord := ords.Get(doc) - start
		if ord >= 0 && ord < len(sc.counts) {
			sc.counts[ord]++
		}
		return true
	})
	if cancelErr != nil {
		return nil, fmt.Errorf("counting segment %s: %w", seg.Name(), cancelErr)
	}
	return sc, nil
}

// first positions the cursor on the first value eligible for merging and
// reports whether there is one. Ordinal 0 never takes part in the merge.
func (sc *segmentCounts) first(skipZero bool) bool {
	sc.pos = 0
	if sc.start == 0 {
		sc.pos = 1
	}
	return sc.seek(skipZero)
}

func (sc *segmentCounts) next(skipZero bool) bool {
	sc.pos++
	return sc.seek(skipZero)
}

func (sc *segmentCounts) seek(skipZero bool) bool {
	if skipZero {
		for sc.pos < len(sc.counts) && sc.counts[sc.pos] == 0 {
			sc.pos++
		}
	}
	return sc.pos < len(sc.counts)
}

func (sc *segmentCounts) value() []byte {
	return sc.sv.LookupOrd(sc.start + sc.pos)
}

func (sc *segmentCounts) count() int64 {
	return sc.counts[sc.pos]
}

// missing returns the count of the missing slot, if this segment counted it.
func (sc *segmentCounts) missing() (int64, bool) {
	if sc.start != 0 || len(sc.counts) == 0 {
		return 0, false
	}
	return sc.counts[0], true
}
