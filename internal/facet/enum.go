package facet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

// enumerate walks the merged dictionary of the field once and intersects
// every value's documents with docs.
func (f *Faceter) enumerate(ctx context.Context, snap *index.Snapshot, docs docset.DocSet, req Request, prefix []byte) (*mergeResult, error) {
	te, err := snap.Terms(req.Field)
	if err != nil {
		return nil, err
	}
	collector := newCollector(req)
	fast := docset.Fast(docs)
	res := &mergeResult{partitions: len(snap.Leaves())}

	visited := 0
	for ok := te.SeekCeil(prefix); ok; ok = te.Next() {
		term := te.Term()
		if len(prefix) > 0 && !bytes.HasPrefix(term, prefix) {
			break
		}
		if visited++; visited%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("enumerating %s: %w", req.Field, err)
			}
		}

		df := te.DocFreq()
		if int64(df) <= collector.Min() {
			continue
		}
		var count int64
		if f.cache != nil && df >= f.opts.EnumCacheMinDF {
			set := f.cache.GetOrLoad(snap.ID(), req.Field, term, te.DocSet)
			count = int64(fast.IntersectionSize(set))
		} else {
			te.ForEachDoc(func(doc uint32) bool {
				if fast.Contains(doc) {
					count++
				}
				return true
			})
		}
		if count == 0 && req.Mincount > 0 {
			continue
		}
		if collector.Collect(term, count) {
			break
		}
	}
	res.entries = collector.Results()
	return res, nil
}

// missingCount returns how many live documents of docs have no value for
// field. Single-valued fields keep those documents in the ordinal 0
// bucket; multi-valued ones are counted as docs minus docs with any value.
func missingCount(snap *index.Snapshot, docs docset.DocSet, field string, multiValued bool) (int64, error) {
	if !multiValued {
		missing, err := snap.MissingDocs(field)
		if err != nil {
			return 0, err
		}
		return int64(docs.IntersectionSize(missing)), nil
	}
	withValue, err := snap.AnyValueDocs(field)
	if err != nil {
		return 0, err
	}
	live := int64(docs.IntersectionSize(snap.LiveDocs()))
	return live - int64(docs.IntersectionSize(withValue)), nil
}
