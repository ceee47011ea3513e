package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/ingestion"
)

func testSchema() *index.Schema {
	return index.NewSchema(
		index.FieldInfo{Name: "color"},
		index.FieldInfo{Name: "size", Type: index.IntField{}},
		index.FieldInfo{Name: "tags", MultiValued: true},
	)
}

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.IngestRequest
		fields []string
	}{
		{
			name: "valid",
			req:  ingestion.IngestRequest{ID: "a", Fields: map[string][]string{"color": {"red"}, "size": {"10"}, "tags": {"x", "y"}}},
		},
		{
			name: "repeated value on single-valued field",
			req:  ingestion.IngestRequest{Fields: map[string][]string{"color": {"red", "red", ""}}},
		},
		{
			name:   "no fields",
			req:    ingestion.IngestRequest{ID: "a"},
			fields: []string{"fields"},
		},
		{
			name:   "unknown field and bad int",
			req:    ingestion.IngestRequest{Fields: map[string][]string{"shape": {"round"}, "size": {"ten"}}},
			fields: []string{"shape", "size"},
		},
		{
			name:   "two colors",
			req:    ingestion.IngestRequest{Fields: map[string][]string{"color": {"red", "blue"}}},
			fields: []string{"color"},
		},
		{
			name:   "long id",
			req:    ingestion.IngestRequest{ID: strings.Repeat("x", 300), Fields: map[string][]string{"color": {"red"}}},
			fields: []string{"id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req, testSchema())
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.fields))
		})
	}
}

func TestValidationErrorIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "bad", "a": "worse"}}
	assert.Equal(t, "a:worse; b:bad", err.Error())
}
