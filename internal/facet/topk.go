package facet

import (
	"container/heap"
	"sort"
)

// better reports whether a ranks before b in count order.
func better(a, b Entry) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Value < b.Value
}

// entryHeap keeps the worst entry at the root.
type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK holds at most capacity entries, evicting the worst on overflow. A
// negative capacity never evicts.
type topK struct {
	capacity int
	h        entryHeap
}

func newTopK(capacity int) *topK {
	t := &topK{capacity: capacity}
	if capacity > 0 && capacity < 1024 {
		t.h = make(entryHeap, 0, capacity+1)
	}
	return t
}

// Push inserts e, evicting the worst entry if the capacity is exceeded.
func (t *topK) Push(e Entry) {
	if t.capacity == 0 {
		return
	}
	heap.Push(&t.h, e)
	if t.capacity > 0 && t.h.Len() > t.capacity {
		heap.Pop(&t.h)
	}
}

// Full reports whether the next Push will evict.
func (t *topK) Full() bool {
	return t.capacity >= 0 && t.h.Len() >= t.capacity
}

// Worst returns the entry that would be evicted next. The heap must be
// non-empty.
func (t *topK) Worst() Entry {
	return t.h[0]
}

func (t *topK) Len() int {
	return t.h.Len()
}

// Sorted returns the entries best first.
func (t *topK) Sorted() []Entry {
	out := make([]Entry, len(t.h))
	copy(out, t.h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
