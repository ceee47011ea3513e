package shardfacet

import "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"

// Params are the merged request's ranking parameters and the mincount the
// shards were asked to apply.
type Params struct {
	Offset   int
	Limit    int
	Mincount int
	Sort     facet.Sort
	Missing  bool
	// InitialMincount is the mincount sent to shards, usually
	// min(Mincount, 1).
	InitialMincount int
}

// ShardRequest is the per-shard limit and mincount to ask for.
type ShardRequest struct {
	Limit    int
	Mincount int
}

// NewParams derives merge parameters from the caller's request.
func NewParams(req facet.Request) Params {
	if req.Sort == "" {
		req.Sort, _ = facet.ParseSort("", req.Limit)
	}
	return Params{
		Offset:          req.Offset,
		Limit:           req.Limit,
		Mincount:        req.Mincount,
		Sort:            req.Sort,
		Missing:         req.Missing,
		InitialMincount: min(req.Mincount, 1),
	}
}

// ShardRequest returns what each shard must be asked for. Count order
// over-requests offset+limit by ratio plus extra so fewer values need
// refining; index order with a mincount above InitialMincount asks for
// every value. maxLimit is the largest limit shards accept (0 for none):
// an over-request is cut back to it, and a window it cannot hold asks for
// every value instead.
func (p Params) ShardRequest(ratio float64, extra, maxLimit int) ShardRequest {
	r := ShardRequest{Limit: -1, Mincount: p.InitialMincount}
	if p.Limit < 0 {
		return r
	}
	window := p.Offset + p.Limit
	if maxLimit > 0 && window > maxLimit {
		return r
	}
	if p.Sort == facet.SortIndex {
		if p.Mincount <= p.InitialMincount {
			r.Limit = window
		}
		return r
	}
	if window == 0 {
		r.Limit = 0
		return r
	}
	r.Limit = int(float64(window)*ratio) + extra
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return r
}
