// Package docset provides the document-set abstraction that facet counts are
// scored against. Sets are read-only once handed to the facet code; the
// roaring-backed Bitmap is the random-access form every other set can be
// converted to.
package docset

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// DocSet is an externally supplied set of global document IDs.
type DocSet interface {
	// Size returns the number of documents in the set.
	Size() int
	// Contains reports whether doc is a member.
	Contains(doc uint32) bool
	// ForEach visits members in ascending order until fn returns false.
	ForEach(fn func(doc uint32) bool)
	// TopFilter returns the members in [base, base+maxDoc), rebased so that
	// base becomes document 0.
	TopFilter(base, maxDoc uint32) *Bitmap
	// IntersectionSize returns |set ∩ other|.
	IntersectionSize(other *Bitmap) int
}

// Bitmap is a DocSet backed by a roaring bitmap.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.New()}
}

// Of returns a Bitmap holding the given documents.
func Of(docs ...uint32) *Bitmap {
	return &Bitmap{rb: roaring.BitmapOf(docs...)}
}

// Range returns a Bitmap holding every document in [start, end).
func Range(start, end uint32) *Bitmap {
	rb := roaring.New()
	if end > start {
		rb.AddRange(uint64(start), uint64(end))
	}
	return &Bitmap{rb: rb}
}

// Wrap adopts rb without copying it.
func Wrap(rb *roaring.Bitmap) *Bitmap {
	if rb == nil {
		rb = roaring.New()
	}
	return &Bitmap{rb: rb}
}

func (b *Bitmap) Add(doc uint32) {
	b.rb.Add(doc)
}

func (b *Bitmap) Size() int {
	return int(b.rb.GetCardinality())
}

func (b *Bitmap) Contains(doc uint32) bool {
	return b.rb.Contains(doc)
}

func (b *Bitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

func (b *Bitmap) ForEach(fn func(doc uint32) bool) {
	it := b.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

func (b *Bitmap) TopFilter(base, maxDoc uint32) *Bitmap {
	out := roaring.New()
	end := uint64(base) + uint64(maxDoc)
	buf := make([]uint32, 0, 256)
	it := b.rb.Iterator()
	it.AdvanceIfNeeded(base)
	for it.HasNext() {
		doc := it.PeekNext()
		if uint64(doc) >= end {
			break
		}
		it.Next()
		buf = append(buf, doc-base)
		if len(buf) == cap(buf) {
			out.AddMany(buf)
			buf = buf[:0]
		}
	}
	out.AddMany(buf)
	return &Bitmap{rb: out}
}

func (b *Bitmap) IntersectionSize(other *Bitmap) int {
	if other == nil {
		return 0
	}
	return int(b.rb.AndCardinality(other.rb))
}

// AndNot removes every member of other from b in place.
func (b *Bitmap) AndNot(other *Bitmap) {
	if other == nil {
		return
	}
	b.rb.AndNot(other.rb)
}

// Or adds every member of other to b in place.
func (b *Bitmap) Or(other *Bitmap) {
	if other == nil {
		return
	}
	b.rb.Or(other.rb)
}

// Shift returns a copy of b with every document moved up by offset.
func (b *Bitmap) Shift(offset uint32) *Bitmap {
	if offset == 0 {
		return b.Clone()
	}
	out := roaring.New()
	buf := make([]uint32, 0, 256)
	it := b.rb.Iterator()
	for it.HasNext() {
		buf = append(buf, it.Next()+offset)
		if len(buf) == cap(buf) {
			out.AddMany(buf)
			buf = buf[:0]
		}
	}
	out.AddMany(buf)
	return &Bitmap{rb: out}
}

func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone()}
}

// Roaring exposes the underlying bitmap for serialization.
func (b *Bitmap) Roaring() *roaring.Bitmap {
	return b.rb
}

// ToSlice returns the members in ascending order.
func (b *Bitmap) ToSlice() []uint32 {
	return b.rb.ToArray()
}

// Sorted is a DocSet over a sorted, de-duplicated slice. It is cheap to build
// from query results but answers Contains with a binary search; Fast converts
// it to a Bitmap when many membership tests are expected.
type Sorted []uint32

// NewSorted sorts and de-duplicates docs.
func NewSorted(docs []uint32) Sorted {
	out := append([]uint32(nil), docs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, d := range out {
		if i > 0 && d == out[n-1] {
			continue
		}
		out[n] = d
		n++
	}
	return Sorted(out[:n])
}

func (s Sorted) Size() int {
	return len(s)
}

func (s Sorted) Contains(doc uint32) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= doc })
	return i < len(s) && s[i] == doc
}

func (s Sorted) ForEach(fn func(doc uint32) bool) {
	for _, d := range s {
		if !fn(d) {
			return
		}
	}
}

func (s Sorted) TopFilter(base, maxDoc uint32) *Bitmap {
	end := uint64(base) + uint64(maxDoc)
	lo := sort.Search(len(s), func(i int) bool { return s[i] >= base })
	out := roaring.New()
	for _, d := range s[lo:] {
		if uint64(d) >= end {
			break
		}
		out.Add(d - base)
	}
	return &Bitmap{rb: out}
}

func (s Sorted) IntersectionSize(other *Bitmap) int {
	if other == nil {
		return 0
	}
	n := 0
	for _, d := range s {
		if other.rb.Contains(d) {
			n++
		}
	}
	return n
}

// Fast returns a random-access view of ds, converting it to a Bitmap unless
// it already is one.
func Fast(ds DocSet) *Bitmap {
	if b, ok := ds.(*Bitmap); ok {
		return b
	}
	out := roaring.New()
	buf := make([]uint32, 0, 256)
	ds.ForEach(func(doc uint32) bool {
		buf = append(buf, doc)
		if len(buf) == cap(buf) {
			out.AddMany(buf)
			buf = buf[:0]
		}
		return true
	})
	out.AddMany(buf)
	return &Bitmap{rb: out}
}
