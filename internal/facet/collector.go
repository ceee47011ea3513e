package facet

// Collector accepts (value, count) pairs in ascending value order. Values
// are in indexed form and are copied when retained.
type Collector interface {
	// Collect offers one value and reports whether collection can stop.
	Collect(value []byte, count int64) (stop bool)
	// Min is the largest count that can no longer be accepted. Callers may
	// skip any value whose count is known to be <= Min.
	Min() int64
	// Results returns the accepted entries in final order, Value still in
	// indexed form.
	Results() []Entry
}

// CountSortedCollector keeps the best offset+limit values by count.
type CountSortedCollector struct {
	offset int
	limit  int
	min    int64
	queue  *topK
}

// NewCountSortedCollector returns a collector for count order. limit < 0
// keeps every value.
func NewCountSortedCollector(offset, limit, mincount int) *CountSortedCollector {
	capacity := -1
	if limit >= 0 {
		capacity = offset + limit
	}
	return &CountSortedCollector{
		offset: offset,
		limit:  limit,
		min:    int64(mincount) - 1,
		queue:  newTopK(capacity),
	}
}

func (c *CountSortedCollector) Collect(value []byte, count int64) bool {
	if c.queue.capacity == 0 {
		return true
	}
	// Values arrive in ascending order, so once the queue is full a later
	// value tying the worst count ranks below it and is skipped too.
	if count > c.min {
		c.queue.Push(Entry{Value: string(value), Count: count})
		if c.queue.Full() {
			c.min = c.queue.Worst().Count
		}
	}
	return false
}

func (c *CountSortedCollector) Min() int64 {
	return c.min
}

func (c *CountSortedCollector) Results() []Entry {
	sorted := c.queue.Sorted()
	if c.offset >= len(sorted) {
		return []Entry{}
	}
	sorted = sorted[c.offset:]
	if c.limit >= 0 && len(sorted) > c.limit {
		sorted = sorted[:c.limit]
	}
	return sorted
}

// IndexSortedCollector emits values in arrival order, which is value
// order.
type IndexSortedCollector struct {
	offset   int
	limit    int
	mincount int64
	results  []Entry
}

// NewIndexSortedCollector returns a collector for index order. limit < 0
// emits every value.
func NewIndexSortedCollector(offset, limit, mincount int) *IndexSortedCollector {
	return &IndexSortedCollector{
		offset:   offset,
		limit:    limit,
		mincount: int64(mincount),
		results:  []Entry{},
	}
}

func (c *IndexSortedCollector) Collect(value []byte, count int64) bool {
	if c.limit == 0 {
		return true
	}
	if count < c.mincount {
		return false
	}
	if c.offset > 0 {
		c.offset--
		return false
	}
	c.results = append(c.results, Entry{Value: string(value), Count: count})
	return c.limit > 0 && len(c.results) >= c.limit
}

func (c *IndexSortedCollector) Min() int64 {
	return c.mincount - 1
}

func (c *IndexSortedCollector) Results() []Entry {
	return c.results
}

func newCollector(req Request) Collector {
	if req.Sort == SortIndex {
		return NewIndexSortedCollector(req.Offset, req.Limit, req.Mincount)
	}
	return NewCountSortedCollector(req.Offset, req.Limit, req.Mincount)
}
