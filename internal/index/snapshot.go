package index

import (
	"fmt"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// Leaf is a segment positioned inside a snapshot. Global document IDs of the
// segment are DocBase + local ID.
type Leaf struct {
	Segment *Segment
	DocBase uint32
}

var snapshotIDs atomic.Uint64

// Snapshot is a point-in-time, ordered view over a set of segments.
// Generation changes whenever the visible documents change.
type Snapshot struct {
	id         uint64
	generation uint64
	schema     *Schema
	leaves     []Leaf
	maxDoc     uint32
}

// NewSnapshot lays segments out back to back in the global ID space.
func NewSnapshot(schema *Schema, generation uint64, segments ...*Segment) *Snapshot {
	s := &Snapshot{
		id:         snapshotIDs.Add(1),
		generation: generation,
		schema:     schema,
		leaves:     make([]Leaf, 0, len(segments)),
	}
	for _, seg := range segments {
		s.leaves = append(s.leaves, Leaf{Segment: seg, DocBase: s.maxDoc})
		s.maxDoc += seg.MaxDoc()
	}
	return s
}

// ID is unique to this snapshot within the process, unlike Generation,
// which two directories or a rebuilt index may repeat.
func (s *Snapshot) ID() uint64 { return s.id }

func (s *Snapshot) Generation() uint64 { return s.generation }
func (s *Snapshot) Schema() *Schema    { return s.schema }
func (s *Snapshot) Leaves() []Leaf     { return s.leaves }
func (s *Snapshot) MaxDoc() uint32     { return s.maxDoc }

// NumDocs returns the number of live documents.
func (s *Snapshot) NumDocs() int {
	n := 0
	for _, l := range s.leaves {
		n += l.Segment.NumDocs()
	}
	return n
}

// LiveDocs returns every live document in global IDs.
func (s *Snapshot) LiveDocs() *docset.Bitmap {
	out := docset.New()
	for _, l := range s.leaves {
		out.Or(l.Segment.LiveDocs().Shift(l.DocBase))
	}
	return out
}

// Terms returns an enumerator over the merged dictionary of field across
// all segments. Call SeekCeil before reading.
func (s *Snapshot) Terms(field string) (*TermsEnum, error) {
	fds := make([]*FieldData, len(s.leaves))
	for i, l := range s.leaves {
		fd, err := l.Segment.Field(field)
		if err != nil {
			return nil, err
		}
		fds[i] = fd
	}
	return &TermsEnum{field: field, leaves: s.leaves, fds: fds}, nil
}

// TermDocs returns the live documents whose field holds the readable value.
func (s *Snapshot) TermDocs(field, value string) (*docset.Bitmap, error) {
	info, ok := s.schema.Field(field)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	indexed, err := info.Type.ToIndexed(value)
	if err != nil {
		return nil, err
	}
	te, err := s.Terms(field)
	if err != nil {
		return nil, err
	}
	if !te.SeekExact(indexed) {
		return docset.New(), nil
	}
	return te.DocSet(), nil
}

// MissingDocs returns the live documents with no value for field.
func (s *Snapshot) MissingDocs(field string) (*docset.Bitmap, error) {
	out := docset.New()
	for _, l := range s.leaves {
		fd, err := l.Segment.Field(field)
		if err != nil {
			return nil, err
		}
		p := fd.Postings[0].Clone()
		p.AndNot(l.Segment.Deleted())
		out.Or(p.Shift(l.DocBase))
	}
	return out, nil
}

// AnyValueDocs returns the live documents holding at least one value for
// field.
func (s *Snapshot) AnyValueDocs(field string) (*docset.Bitmap, error) {
	out := docset.New()
	for _, l := range s.leaves {
		fd, err := l.Segment.Field(field)
		if err != nil {
			return nil, err
		}
		local := docset.New()
		for ord := 1; ord < len(fd.Postings); ord++ {
			local.Or(fd.Postings[ord])
		}
		local.AndNot(l.Segment.Deleted())
		out.Or(local.Shift(l.DocBase))
	}
	return out, nil
}
