package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// FieldData is one field's data inside a segment. Values is the sorted
// dictionary with Values[0] reserved for "no value"; Postings[ord] holds the
// segment-local documents carrying that value, and Postings[0] the documents
// with no value at all. Ords is nil for multi-valued fields.
type FieldData struct {
	Name     string
	Values   [][]byte
	Postings []*docset.Bitmap
	Ords     *PackedOrds
}

// Validate checks the structural invariants a reader relies on.
func (fd *FieldData) Validate(maxDoc uint32) error {
	if len(fd.Values) == 0 || fd.Values[0] != nil {
		return fmt.Errorf("field %s: ordinal 0 must be the missing slot", fd.Name)
	}
	if len(fd.Postings) != len(fd.Values) {
		return fmt.Errorf("field %s: %d postings for %d values", fd.Name, len(fd.Postings), len(fd.Values))
	}
	for i := 2; i < len(fd.Values); i++ {
		if bytes.Compare(fd.Values[i-1], fd.Values[i]) >= 0 {
			return fmt.Errorf("field %s: dictionary not strictly sorted at ordinal %d", fd.Name, i)
		}
	}
	if fd.Ords != nil && fd.Ords.Len() != int(maxDoc) {
		return fmt.Errorf("field %s: ordinal array covers %d docs, segment has %d", fd.Name, fd.Ords.Len(), maxDoc)
	}
	return nil
}

// SortedValues is the per-segment value dictionary of a single-valued field.
type SortedValues struct {
	fd *FieldData
}

// NumOrds returns the size of the ordinal space, including the missing slot.
func (sv *SortedValues) NumOrds() int {
	return len(sv.fd.Values)
}

// LookupOrd returns the indexed bytes of ord. Ordinal 0 returns nil.
func (sv *SortedValues) LookupOrd(ord int) []byte {
	return sv.fd.Values[ord]
}

// LookupTerm binary-searches the dictionary for key. It returns the ordinal
// when key is present, otherwise -(insertionPoint)-1. The missing slot sorts
// before every value, so insertion points are always >= 1.
func (sv *SortedValues) LookupTerm(key []byte) int {
	values := sv.fd.Values
	n := len(values) - 1
	i := sort.Search(n, func(i int) bool {
		return bytes.Compare(values[i+1], key) >= 0
	})
	ord := i + 1
	if ord < len(values) && bytes.Equal(values[ord], key) {
		return ord
	}
	return -ord - 1
}

// Ord returns the ordinal assigned to a segment-local document.
func (sv *SortedValues) Ord(doc uint32) int {
	return sv.fd.Ords.Get(doc)
}

// Ords exposes the packed ordinal array.
func (sv *SortedValues) Ords() *PackedOrds {
	return sv.fd.Ords
}
