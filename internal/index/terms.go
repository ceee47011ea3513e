package index

import (
	"bytes"
	"container/heap"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// TermsEnum walks the distinct values of one field across every segment of
// a snapshot in ascending byte order.
type TermsEnum struct {
	field   string
	leaves  []Leaf
	fds     []*FieldData
	h       cursorHeap
	term    []byte
	matches []termCursor
}

type termCursor struct {
	leaf int
	ord  int
	fd   *FieldData
}

func (c *termCursor) value() []byte {
	return c.fd.Values[c.ord]
}

type cursorHeap []*termCursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if cmp := bytes.Compare(h[i].value(), h[j].value()); cmp != 0 {
		return cmp < 0
	}
	return h[i].leaf < h[j].leaf
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*termCursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SeekCeil positions the enum on the smallest value >= target and reports
// whether one exists. A nil target positions on the first value.
func (te *TermsEnum) SeekCeil(target []byte) bool {
	te.h = te.h[:0]
	for i, fd := range te.fds {
		values := fd.Values
		ord := sort.Search(len(values)-1, func(j int) bool {
			return bytes.Compare(values[j+1], target) >= 0
		}) + 1
		if ord < len(values) {
			te.h = append(te.h, &termCursor{leaf: i, ord: ord, fd: fd})
		}
	}
	heap.Init(&te.h)
	return te.Next()
}

// SeekExact positions the enum on target and reports whether it exists.
func (te *TermsEnum) SeekExact(target []byte) bool {
	return te.SeekCeil(target) && bytes.Equal(te.term, target)
}

// Next advances to the next distinct value.
func (te *TermsEnum) Next() bool {
	te.matches = te.matches[:0]
	if te.h.Len() == 0 {
		te.term = nil
		return false
	}
	te.term = te.h[0].value()
	for te.h.Len() > 0 && bytes.Equal(te.h[0].value(), te.term) {
		c := te.h[0]
		te.matches = append(te.matches, *c)
		c.ord++
		if c.ord >= len(c.fd.Values) {
			heap.Pop(&te.h)
		} else {
			heap.Fix(&te.h, 0)
		}
	}
	return true
}

// Term returns the current value in indexed form. The slice must not be
// modified.
func (te *TermsEnum) Term() []byte {
	return te.term
}

// DocFreq returns the number of documents holding the current value,
// deleted documents included. It is an upper bound on any live count.
func (te *TermsEnum) DocFreq() int {
	df := 0
	for _, m := range te.matches {
		df += m.fd.Postings[m.ord].Size()
	}
	return df
}

// ForEachDoc visits the live documents of the current value in global IDs
// until fn returns false.
func (te *TermsEnum) ForEachDoc(fn func(doc uint32) bool) {
	for _, m := range te.matches {
		leaf := te.leaves[m.leaf]
		deleted := leaf.Segment.Deleted()
		stopped := false
		m.fd.Postings[m.ord].ForEach(func(doc uint32) bool {
			if deleted != nil && deleted.Contains(doc) {
				return true
			}
			if !fn(leaf.DocBase + doc) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// DocSet materializes the live documents of the current value in global
// IDs.
func (te *TermsEnum) DocSet() *docset.Bitmap {
	out := docset.New()
	for _, m := range te.matches {
		leaf := te.leaves[m.leaf]
		p := m.fd.Postings[m.ord].Clone()
		p.AndNot(leaf.Segment.Deleted())
		out.Or(p.Shift(leaf.DocBase))
	}
	return out
}
