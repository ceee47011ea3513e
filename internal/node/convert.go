package node

import (
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/facet"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

// RequestFromProto validates the wire request and resolves its sort and
// method names.
func RequestFromProto(req *proto.FacetCountRequest) (facet.Request, error) {
	if req.Field == "" {
		return facet.Request{}, apperrors.InputError("", "field is required")
	}
	sort, err := facet.ParseSort(req.Sort, req.Limit)
	if err != nil {
		return facet.Request{}, apperrors.InputError(req.Field, "%v", err)
	}
	method, err := facet.ParseMethod(req.Method)
	if err != nil {
		return facet.Request{}, apperrors.InputError(req.Field, "%v", err)
	}
	return facet.Request{
		Field:    req.Field,
		Offset:   req.Offset,
		Limit:    req.Limit,
		Mincount: req.Mincount,
		Missing:  req.Missing,
		Sort:     sort,
		Prefix:   req.Prefix,
		Method:   method,
		Threads:  req.Threads,
	}, nil
}

func EntriesToProto(entries []facet.Entry) []proto.FacetEntry {
	out := make([]proto.FacetEntry, len(entries))
	for i, e := range entries {
		out[i] = proto.FacetEntry{Value: e.Value, Count: e.Count, Missing: e.Missing}
	}
	return out
}

func EntriesFromProto(entries []proto.FacetEntry) []facet.Entry {
	out := make([]facet.Entry, len(entries))
	for i, e := range entries {
		out[i] = facet.Entry{Value: e.Value, Count: e.Count, Missing: e.Missing}
	}
	return out
}

// FilterKey is the canonical form of f used in cache keys.
func FilterKey(f *proto.TermFilter) string {
	if f == nil {
		return ""
	}
	return f.Field + ":" + f.Value
}
