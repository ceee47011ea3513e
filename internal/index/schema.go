package index

import (
	"fmt"
	"sort"
)

// FieldInfo describes one facetable field.
type FieldInfo struct {
	Name        string
	Type        FieldType
	MultiValued bool
}

// Schema is the set of fields the index knows about. It is immutable once
// built.
type Schema struct {
	fields map[string]FieldInfo
}

// NewSchema builds a Schema. Fields without a type default to StrField.
func NewSchema(fields ...FieldInfo) *Schema {
	s := &Schema{fields: make(map[string]FieldInfo, len(fields))}
	for _, f := range fields {
		if f.Type == nil {
			f.Type = StrField{}
		}
		s.fields[f.Name] = f
	}
	return s
}

// Field returns the definition of name.
func (s *Schema) Field(name string) (FieldInfo, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// MustField is Field for callers that validated the name earlier.
func (s *Schema) MustField(name string) FieldInfo {
	f, ok := s.fields[name]
	if !ok {
		panic(fmt.Sprintf("index: unknown field %q", name))
	}
	return f
}

// Names returns the field names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
