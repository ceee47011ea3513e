package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestGroupID(t *testing.T) {
	assert.Equal(t, "facetengine.document-ingest", GroupID("facetengine", "document-ingest"))
	assert.Equal(t, "facet-events", GroupID("", "facet-events"))
}

func TestCompression(t *testing.T) {
	assert.Equal(t, kafka.Lz4, compression("lz4"))
	assert.Equal(t, kafka.Zstd, compression("zstd"))
	assert.Equal(t, kafka.Compression(0), compression("none"))
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		ID string `json:"id"`
	}
	ev, err := DecodeJSON[event]([]byte(`{"id":"doc-1"}`))
	assert.NoError(t, err)
	assert.Equal(t, "doc-1", ev.ID)

	_, err = DecodeJSON[event]([]byte(`{`))
	assert.ErrorContains(t, err, "decoding kafka message")
}
