// Package facet computes facet counts for one field over a document set:
// the distribution of the field's values among those documents, ranked by
// count or by value.
package facet

import "fmt"

// Sort orders facet entries.
type Sort string

const (
	// SortCount ranks by count descending, ties broken by value ascending.
	SortCount Sort = "count"
	// SortIndex ranks by value ascending.
	SortIndex Sort = "index"
)

// ParseSort accepts the names used on the wire. An empty name picks count
// order when limit is positive and index order otherwise.
func ParseSort(name string, limit int) (Sort, error) {
	switch name {
	case "":
		if limit > 0 {
			return SortCount, nil
		}
		return SortIndex, nil
	case "count", "true":
		return SortCount, nil
	case "index", "lex", "false":
		return SortIndex, nil
	default:
		return "", fmt.Errorf("unknown facet sort %q", name)
	}
}

// Method selects the counting algorithm.
type Method string

const (
	// MethodFCS counts every segment in parallel and merges in value order.
	MethodFCS Method = "fcs"
	// MethodFC is MethodFCS restricted to the calling goroutine.
	MethodFC Method = "fc"
	// MethodEnum walks the merged value dictionary once.
	MethodEnum Method = "enum"
)

// ParseMethod accepts "", fc, fcs and enum.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case "", MethodFCS, MethodFC, MethodEnum:
		return Method(name), nil
	default:
		return "", fmt.Errorf("unknown facet method %q", name)
	}
}

// Entry is one facet value and the number of documents carrying it. The
// missing bucket has Missing set and an empty Value.
type Entry struct {
	Value   string `json:"value"`
	Count   int64  `json:"count"`
	Missing bool   `json:"missing,omitempty"`
}

// Request describes one field facet. Limit < 0 means unlimited; Threads
// follows workpool.Run (0 synchronous, < 0 unbounded).
type Request struct {
	Field    string
	Offset   int
	Limit    int
	Mincount int
	Missing  bool
	Sort     Sort
	Prefix   string
	Threads  int
	Method   Method
}

// FieldResult pairs a field with its computed entries.
type FieldResult struct {
	Field   string  `json:"field"`
	Entries []Entry `json:"entries"`
}
