package index

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// ErrMultiValued is returned when a per-document ordinal array is requested
// for a field that can hold several values per document.
var ErrMultiValued = errors.New("field is multi-valued")

// FieldLoader decodes a field's data on first use. Returning (nil, nil)
// means the segment has no data for the field.
type FieldLoader interface {
	LoadField(name string) (*FieldData, error)
}

// MapLoader serves fields that are already decoded in memory.
type MapLoader map[string]*FieldData

func (m MapLoader) LoadField(name string) (*FieldData, error) {
	return m[name], nil
}

type fieldSlot struct {
	once sync.Once
	fd   *FieldData
	err  error
}

// fieldCache is shared by every version of a segment so that applying
// deletes never forces fields to be decoded again.
type fieldCache struct {
	loader FieldLoader
	mu     sync.Mutex
	slots  map[string]*fieldSlot
}

// Segment is an immutable slice of the index with its own value
// dictionaries and ordinal space. Document IDs inside a segment are local,
// in [0, MaxDoc).
type Segment struct {
	name    string
	maxDoc  uint32
	deleted *docset.Bitmap
	cache   *fieldCache
}

// NewSegment wraps a loader. deleted may be nil.
func NewSegment(name string, maxDoc uint32, deleted *docset.Bitmap, loader FieldLoader) *Segment {
	return &Segment{
		name:    name,
		maxDoc:  maxDoc,
		deleted: deleted,
		cache: &fieldCache{
			loader: loader,
			slots:  make(map[string]*fieldSlot),
		},
	}
}

func (s *Segment) Name() string   { return s.name }
func (s *Segment) MaxDoc() uint32 { return s.maxDoc }

// Deleted returns the locally numbered deleted documents, or nil.
func (s *Segment) Deleted() *docset.Bitmap {
	return s.deleted
}

// NumDocs returns the number of live documents.
func (s *Segment) NumDocs() int {
	if s.deleted == nil {
		return int(s.maxDoc)
	}
	return int(s.maxDoc) - s.deleted.Size()
}

// LiveDocs returns the locally numbered live documents.
func (s *Segment) LiveDocs() *docset.Bitmap {
	live := docset.Range(0, s.maxDoc)
	live.AndNot(s.deleted)
	return live
}

// WithDeletes returns a new version of the segment whose deleted set is
// the union of the current one and del.
func (s *Segment) WithDeletes(del *docset.Bitmap) *Segment {
	merged := docset.New()
	if s.deleted != nil {
		merged.Or(s.deleted)
	}
	merged.Or(del)
	return &Segment{
		name:    s.name,
		maxDoc:  s.maxDoc,
		deleted: merged,
		cache:   s.cache,
	}
}

// Field returns the decoded data for name. Fields the segment never saw
// come back as all-missing.
func (s *Segment) Field(name string) (*FieldData, error) {
	c := s.cache
	c.mu.Lock()
	slot, ok := c.slots[name]
	if !ok {
		slot = &fieldSlot{}
		c.slots[name] = slot
	}
	c.mu.Unlock()

	slot.once.Do(func() {
		fd, err := c.loader.LoadField(name)
		if err != nil {
			slot.err = fmt.Errorf("segment %s: loading field %s: %w", s.name, name, err)
			return
		}
		if fd == nil {
			fd = emptyField(name, s.maxDoc)
		}
		slot.fd = fd
	})
	return slot.fd, slot.err
}

// SortedValues returns the dictionary and ordinal array of a single-valued
// field.
func (s *Segment) SortedValues(name string) (*SortedValues, error) {
	fd, err := s.Field(name)
	if err != nil {
		return nil, err
	}
	if fd.Ords == nil {
		return nil, fmt.Errorf("segment %s: field %s: %w", s.name, name, ErrMultiValued)
	}
	return &SortedValues{fd: fd}, nil
}

func emptyField(name string, maxDoc uint32) *FieldData {
	return &FieldData{
		Name:     name,
		Values:   [][]byte{nil},
		Postings: []*docset.Bitmap{docset.Range(0, maxDoc)},
		Ords:     NewPackedOrds(make([]int, maxDoc), 1),
	}
}
