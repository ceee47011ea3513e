// Package validator checks ingestion requests against the index schema
// before they are published, so the indexer only sees documents it can
// accept. It returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion"
)

const (
	maxIDLength     = 255
	maxValueLength  = 4096
	maxValuesPerDoc = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the ID and every field of req: the field
// must exist in schema, every value must convert to the field's indexed
// form, and single-valued fields take at most one distinct value.
func ValidateIngestRequest(req *ingestion.IngestRequest, schema *index.Schema) error {
	errs := make(map[string]string)

	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}

	total := 0
	for name, values := range req.Fields {
		total += len(values)
		info, ok := schema.Field(name)
		if !ok {
			errs[name] = "unknown field"
			continue
		}
		if msg := checkValues(info, values); msg != "" {
			errs[name] = msg
		}
	}
	if total > maxValuesPerDoc {
		errs["fields"] = fmt.Sprintf("at most %d values per document", maxValuesPerDoc)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkValues(info index.FieldInfo, values []string) string {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if len(v) > maxValueLength {
			return fmt.Sprintf("values must be at most %d characters", maxValueLength)
		}
		indexed, err := info.Type.ToIndexed(v)
		if err != nil {
			return fmt.Sprintf("%q is not a valid %s", v, info.Type.Name())
		}
		distinct[string(indexed)] = struct{}{}
	}
	if !info.MultiValued && len(distinct) > 1 {
		return fmt.Sprintf("single-valued field got %d values", len(distinct))
	}
	return ""
}
