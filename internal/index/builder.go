package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// SegmentData is a fully decoded segment: external document IDs in local
// order plus the data of every field.
type SegmentData struct {
	Name   string
	MaxDoc uint32
	IDs    []string
	Fields map[string]*FieldData
}

// Open exposes the data as a Segment. deleted may be nil.
func (d *SegmentData) Open(deleted *docset.Bitmap) *Segment {
	return NewSegment(d.Name, d.MaxDoc, deleted, MapLoader(d.Fields))
}

// Builder accumulates documents for one segment.
type Builder struct {
	schema *Schema
	ids    []string
	// values[field][doc] holds the indexed values of doc.
	values map[string][][][]byte
}

func NewBuilder(schema *Schema) *Builder {
	b := &Builder{
		schema: schema,
		values: make(map[string][][][]byte),
	}
	for _, name := range schema.Names() {
		b.values[name] = nil
	}
	return b
}

// Add appends a document and returns its local ID. Unknown fields and
// several values on a single-valued field are rejected.
func (b *Builder) Add(id string, fields map[string][]string) (uint32, error) {
	indexed := make(map[string][][]byte, len(fields))
	for name, readable := range fields {
		info, ok := b.schema.Field(name)
		if !ok {
			return 0, fmt.Errorf("document %s: unknown field %q", id, name)
		}
		vals := make([][]byte, 0, len(readable))
		for _, r := range readable {
			// An empty value is indistinguishable from no value.
			if r == "" {
				continue
			}
			v, err := info.Type.ToIndexed(r)
			if err != nil {
				return 0, fmt.Errorf("document %s: field %s: %w", id, name, err)
			}
			vals = append(vals, v)
		}
		vals = dedupe(vals)
		if !info.MultiValued && len(vals) > 1 {
			return 0, fmt.Errorf("document %s: field %s is single-valued, got %d values", id, name, len(vals))
		}
		indexed[name] = vals
	}

	doc := uint32(len(b.ids))
	b.ids = append(b.ids, id)
	for name := range b.values {
		b.values[name] = append(b.values[name], indexed[name])
	}
	return doc, nil
}

// Len returns the number of buffered documents.
func (b *Builder) Len() int {
	return len(b.ids)
}

// Build freezes the buffered documents into a segment and resets the
// builder.
func (b *Builder) Build(name string) *SegmentData {
	maxDoc := uint32(len(b.ids))
	data := &SegmentData{
		Name:   name,
		MaxDoc: maxDoc,
		IDs:    b.ids,
		Fields: make(map[string]*FieldData, len(b.values)),
	}
	for field, perDoc := range b.values {
		info := b.schema.MustField(field)
		data.Fields[field] = buildField(field, info.MultiValued, maxDoc, perDoc)
	}

	b.ids = nil
	for name := range b.values {
		b.values[name] = nil
	}
	return data
}

func buildField(name string, multi bool, maxDoc uint32, perDoc [][][]byte) *FieldData {
	var all [][]byte
	for _, vals := range perDoc {
		all = append(all, vals...)
	}
	dict := dedupe(all)

	values := make([][]byte, 1, len(dict)+1)
	values = append(values, dict...)
	postings := make([]*docset.Bitmap, len(values))
	for i := range postings {
		postings[i] = docset.New()
	}

	lookup := func(v []byte) int {
		i := sort.Search(len(dict), func(i int) bool {
			return bytes.Compare(dict[i], v) >= 0
		})
		return i + 1
	}

	var ords []int
	if !multi {
		ords = make([]int, maxDoc)
	}
	for doc, vals := range perDoc {
		if len(vals) == 0 {
			postings[0].Add(uint32(doc))
			continue
		}
		for _, v := range vals {
			ord := lookup(v)
			postings[ord].Add(uint32(doc))
			if ords != nil {
				ords[doc] = ord
			}
		}
	}

	fd := &FieldData{Name: name, Values: values, Postings: postings}
	if ords != nil {
		fd.Ords = NewPackedOrds(ords, len(values))
	}
	return fd
}

// dedupe sorts vals and drops byte-equal duplicates.
func dedupe(vals [][]byte) [][]byte {
	if len(vals) < 2 {
		return vals
	}
	sorted := append([][]byte(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	n := 1
	for i := 1; i < len(sorted); i++ {
		if !bytes.Equal(sorted[i], sorted[n-1]) {
			sorted[n] = sorted[i]
			n++
		}
	}
	return sorted[:n]
}
