package docset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopFilterRebases(t *testing.T) {
	sets := map[string]DocSet{
		"bitmap": Of(1, 4, 5, 9, 10, 12),
		"sorted": NewSorted([]uint32{12, 9, 1, 5, 4, 10, 5}),
	}
	for name, ds := range sets {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []uint32{0, 1, 5}, ds.TopFilter(4, 6).ToSlice())
			assert.Empty(t, ds.TopFilter(13, 10).ToSlice())
			assert.Equal(t, []uint32{1}, ds.TopFilter(0, 4).ToSlice())
		})
	}
}

func TestNewSortedDedupes(t *testing.T) {
	s := NewSorted([]uint32{3, 1, 3, 2, 1})
	assert.Equal(t, Sorted{1, 2, 3}, s)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))
	assert.Equal(t, 3, s.Size())
}

func TestIntersectionSize(t *testing.T) {
	other := Range(2, 6)
	assert.Equal(t, 2, Of(1, 3, 5, 7).IntersectionSize(other))
	assert.Equal(t, 2, NewSorted([]uint32{1, 3, 5, 7}).IntersectionSize(other))
	assert.Equal(t, 0, Of(1).IntersectionSize(nil))
}

func TestShiftAndFast(t *testing.T) {
	b := Of(0, 2)
	shifted := b.Shift(10)
	assert.Equal(t, []uint32{10, 12}, shifted.ToSlice())
	assert.Equal(t, []uint32{0, 2}, b.ToSlice(), "shift must not modify the source")

	fast := Fast(NewSorted([]uint32{5, 7}))
	require.NotNil(t, fast)
	assert.Equal(t, []uint32{5, 7}, fast.ToSlice())
	assert.Same(t, b, Fast(b))
}

func TestForEachStops(t *testing.T) {
	var seen []uint32
	Range(0, 10).ForEach(func(doc uint32) bool {
		seen = append(seen, doc)
		return len(seen) < 3
	})
	assert.Equal(t, []uint32{0, 1, 2}, seen)
}

func TestAndNotOr(t *testing.T) {
	b := Range(0, 5)
	b.AndNot(Of(1, 3))
	b.AndNot(nil)
	assert.Equal(t, []uint32{0, 2, 4}, b.ToSlice())
	b.Or(Of(9))
	assert.Equal(t, 4, b.Size())
	assert.True(t, Wrap(nil).IsEmpty())
}
