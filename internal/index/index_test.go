package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

func colorSchema() *Schema {
	return NewSchema(
		FieldInfo{Name: "color"},
		FieldInfo{Name: "size", Type: IntField{}},
		FieldInfo{Name: "tags", MultiValued: true},
	)
}

func buildSegment(t *testing.T, name string, docs []map[string][]string) *SegmentData {
	t.Helper()
	b := NewBuilder(colorSchema())
	for i, d := range docs {
		_, err := b.Add(fmt.Sprintf("%s-%d", name, i), d)
		require.NoError(t, err)
	}
	return b.Build(name)
}

func TestPackedOrdsWidths(t *testing.T) {
	tests := []struct {
		numOrds int
		bits    int
	}{
		{1, 8},
		{256, 8},
		{257, 16},
		{65536, 16},
		{65537, 32},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.numOrds), func(t *testing.T) {
			ords := []int{0, tt.numOrds - 1, tt.numOrds / 2}
			p := NewPackedOrds(ords, tt.numOrds)
			assert.Equal(t, tt.bits, p.BitsPerValue())
			for i, o := range ords {
				assert.Equal(t, o, p.Get(uint32(i)))
			}

			raw, err := p.MarshalBinary()
			require.NoError(t, err)
			back, err := UnmarshalPackedOrds(raw)
			require.NoError(t, err)
			assert.Equal(t, p.Len(), back.Len())
			for i, o := range ords {
				assert.Equal(t, o, back.Get(uint32(i)))
			}
		})
	}
}

func TestUnmarshalPackedOrdsRejectsBadInput(t *testing.T) {
	_, err := UnmarshalPackedOrds(nil)
	assert.Error(t, err)
	_, err = UnmarshalPackedOrds([]byte{16, 1, 2, 3})
	assert.Error(t, err)
	_, err = UnmarshalPackedOrds([]byte{12, 1})
	assert.Error(t, err)
}

func TestIntFieldOrdering(t *testing.T) {
	ft := IntField{}
	var prev []byte
	for _, v := range []string{"-100", "-1", "0", "7", "42", "1000000"} {
		b, err := ft.ToIndexed(v)
		require.NoError(t, err)
		assert.Equal(t, v, ft.ToReadable(b))
		if prev != nil {
			assert.Less(t, string(prev), string(b), "%s must sort after the previous value", v)
		}
		prev = b
	}
	_, err := ft.ToIndexed("abc")
	assert.Error(t, err)
}

func TestBuilderRejectsInvalidDocuments(t *testing.T) {
	b := NewBuilder(colorSchema())
	_, err := b.Add("a", map[string][]string{"unknown": {"x"}})
	assert.Error(t, err)
	_, err = b.Add("b", map[string][]string{"color": {"red", "blue"}})
	assert.Error(t, err)
	_, err = b.Add("c", map[string][]string{"size": {"big"}})
	assert.Error(t, err)
	assert.Zero(t, b.Len())

	// duplicates on a single-valued field collapse to one value
	doc, err := b.Add("d", map[string][]string{"color": {"red", "red"}})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), doc)
}

func TestBuilderSortedValues(t *testing.T) {
	data := buildSegment(t, "s0", []map[string][]string{
		{"color": {"red"}},
		{"color": {"green"}},
		{},
		{"color": {"yellow"}},
		{"color": {"red"}},
	})
	require.NoError(t, data.Fields["color"].Validate(data.MaxDoc))

	seg := data.Open(nil)
	sv, err := seg.SortedValues("color")
	require.NoError(t, err)
	assert.Equal(t, 4, sv.NumOrds())
	assert.Nil(t, sv.LookupOrd(0))
	assert.Equal(t, "green", string(sv.LookupOrd(1)))
	assert.Equal(t, "red", string(sv.LookupOrd(2)))
	assert.Equal(t, "yellow", string(sv.LookupOrd(3)))

	assert.Equal(t, 2, sv.Ord(0))
	assert.Equal(t, 1, sv.Ord(1))
	assert.Equal(t, 0, sv.Ord(2))
	assert.Equal(t, 3, sv.Ord(3))

	assert.Equal(t, 2, sv.LookupTerm([]byte("red")))
	assert.Equal(t, -3, sv.LookupTerm([]byte("re")))
	assert.Equal(t, -4, sv.LookupTerm([]byte("re\xff")))
	assert.Equal(t, -2, sv.LookupTerm([]byte("a")))
	assert.Equal(t, -5, sv.LookupTerm([]byte("zzz")))
}

func TestSegmentMultiValuedHasNoOrds(t *testing.T) {
	data := buildSegment(t, "s0", []map[string][]string{
		{"tags": {"a", "b"}},
		{"tags": {"b"}},
	})
	seg := data.Open(nil)
	_, err := seg.SortedValues("tags")
	assert.ErrorIs(t, err, ErrMultiValued)

	fd, err := seg.Field("tags")
	require.NoError(t, err)
	assert.Equal(t, 2, fd.Postings[2].Size())
}

func TestSegmentUnknownFieldIsAllMissing(t *testing.T) {
	seg := NewSegment("empty", 3, nil, MapLoader{})
	sv, err := seg.SortedValues("color")
	require.NoError(t, err)
	assert.Equal(t, 1, sv.NumOrds())
	for doc := uint32(0); doc < 3; doc++ {
		assert.Equal(t, 0, sv.Ord(doc))
	}
}

func TestSegmentWithDeletes(t *testing.T) {
	data := buildSegment(t, "s0", []map[string][]string{
		{"color": {"red"}}, {"color": {"red"}}, {"color": {"blue"}},
	})
	seg := data.Open(nil)
	assert.Equal(t, 3, seg.NumDocs())

	del := seg.WithDeletes(docset.Of(1))
	assert.Equal(t, 2, del.NumDocs())
	assert.Equal(t, []uint32{0, 2}, del.LiveDocs().ToSlice())
	assert.Equal(t, 3, seg.NumDocs(), "original segment is unchanged")

	del2 := del.WithDeletes(docset.Of(2))
	assert.Equal(t, []uint32{0}, del2.LiveDocs().ToSlice())
}

func TestFieldLoadedOnce(t *testing.T) {
	loader := &countingLoader{fd: map[string]*FieldData{}}
	seg := NewSegment("s", 2, nil, loader)
	for i := 0; i < 3; i++ {
		_, err := seg.Field("color")
		require.NoError(t, err)
	}
	_, err := seg.WithDeletes(docset.Of(0)).Field("color")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
}

type countingLoader struct {
	fd    map[string]*FieldData
	calls int
}

func (l *countingLoader) LoadField(name string) (*FieldData, error) {
	l.calls++
	return l.fd[name], nil
}

func twoSegmentSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s0 := buildSegment(t, "s0", []map[string][]string{
		{"color": {"red"}, "tags": {"x", "y"}},
		{"color": {"green"}},
		{"color": {"red"}, "tags": {"y"}},
	})
	s1 := buildSegment(t, "s1", []map[string][]string{
		{"color": {"blue"}, "tags": {"z"}},
		{},
		{"color": {"red"}},
	})
	return NewSnapshot(colorSchema(), 7, s0.Open(nil), s1.Open(docset.Of(2)))
}

func TestSnapshotLayout(t *testing.T) {
	snap := twoSegmentSnapshot(t)
	assert.Equal(t, uint64(7), snap.Generation())
	assert.NotEqual(t, snap.ID(), twoSegmentSnapshot(t).ID(), "same generation, distinct snapshots")
	assert.Equal(t, uint32(6), snap.MaxDoc())
	assert.Equal(t, 5, snap.NumDocs())
	require.Len(t, snap.Leaves(), 2)
	assert.Equal(t, uint32(3), snap.Leaves()[1].DocBase)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, snap.LiveDocs().ToSlice())
}

func TestTermsEnumMergesSegments(t *testing.T) {
	snap := twoSegmentSnapshot(t)
	te, err := snap.Terms("color")
	require.NoError(t, err)

	type term struct {
		value string
		df    int
		docs  []uint32
	}
	var got []term
	for ok := te.SeekCeil(nil); ok; ok = te.Next() {
		got = append(got, term{string(te.Term()), te.DocFreq(), te.DocSet().ToSlice()})
	}
	assert.Equal(t, []term{
		{"blue", 1, []uint32{3}},
		{"green", 1, []uint32{1}},
		// the deleted red in s1 still counts toward DocFreq
		{"red", 3, []uint32{0, 2}},
	}, got)
}

func TestTermsEnumSeek(t *testing.T) {
	snap := twoSegmentSnapshot(t)
	te, err := snap.Terms("color")
	require.NoError(t, err)

	require.True(t, te.SeekCeil([]byte("c")))
	assert.Equal(t, "green", string(te.Term()))
	assert.False(t, te.SeekCeil([]byte("s")))
	assert.Nil(t, te.Term())

	assert.True(t, te.SeekExact([]byte("red")))
	assert.False(t, te.SeekExact([]byte("re")))

	require.True(t, te.SeekExact([]byte("red")))
	var docs []uint32
	te.ForEachDoc(func(doc uint32) bool {
		docs = append(docs, doc)
		return true
	})
	assert.Equal(t, []uint32{0, 2}, docs)
}

func TestSnapshotTermDocsAndMissing(t *testing.T) {
	snap := twoSegmentSnapshot(t)

	red, err := snap.TermDocs("color", "red")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, red.ToSlice())

	none, err := snap.TermDocs("color", "purple")
	require.NoError(t, err)
	assert.True(t, none.IsEmpty())

	_, err = snap.TermDocs("nope", "x")
	assert.Error(t, err)

	missing, err := snap.MissingDocs("color")
	require.NoError(t, err)
	assert.Equal(t, []uint32{4}, missing.ToSlice())

	withTags, err := snap.AnyValueDocs("tags")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2, 3}, withTags.ToSlice())
}
