package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

type recorder struct {
	indexed []indexer.Document
	deleted []string
	reject  map[string]bool
}

func (r *recorder) IndexDocument(doc indexer.Document) error {
	if r.reject[doc.ID] {
		return errors.New("rejected")
	}
	r.indexed = append(r.indexed, doc)
	return nil
}

func (r *recorder) DeleteDocument(id string) bool {
	r.deleted = append(r.deleted, id)
	return true
}

func encode(t *testing.T, ev proto.DocumentEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessage(t *testing.T) {
	rec := &recorder{reject: map[string]bool{"bad": true}}
	handle := HandleMessage(rec)
	ctx := context.Background()

	require.NoError(t, handle(ctx, nil, encode(t, proto.DocumentEvent{ID: "a", Fields: map[string][]string{"color": {"red"}}})))
	require.NoError(t, handle(ctx, []byte("b"), encode(t, proto.DocumentEvent{Op: proto.OpUpsert, Fields: map[string][]string{"color": {"blue"}}})))
	require.NoError(t, handle(ctx, nil, encode(t, proto.DocumentEvent{ID: "a", Op: proto.OpDelete})))
	require.NoError(t, handle(ctx, nil, encode(t, proto.DocumentEvent{ID: "bad"})))
	require.NoError(t, handle(ctx, nil, encode(t, proto.DocumentEvent{ID: "c", Op: "merge"})))
	require.NoError(t, handle(ctx, nil, encode(t, proto.DocumentEvent{})))
	require.NoError(t, handle(ctx, nil, []byte("{")))

	require.Len(t, rec.indexed, 2)
	assert.Equal(t, "a", rec.indexed[0].ID)
	assert.Equal(t, []string{"red"}, rec.indexed[0].Fields["color"])
	assert.Equal(t, "b", rec.indexed[1].ID)
	assert.Equal(t, []string{"a"}, rec.deleted)
}

type fakeRows []postgres.FieldRow

func (f fakeRows) StreamFieldRows(ctx context.Context, _ string, fn func(postgres.FieldRow) error) error {
	for _, row := range f {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func TestLoadGroupsRowsByDocument(t *testing.T) {
	rows := fakeRows{
		{DocID: "1", Field: "color", Value: "red"},
		{DocID: "1", Field: "tags", Value: "a"},
		{DocID: "1", Field: "tags", Value: "b"},
		{DocID: "2", Field: "color", Value: "blue"},
		{DocID: "3", Field: "", Value: ""},
		{DocID: "4", Field: "color", Value: "red"},
	}
	rec := &recorder{reject: map[string]bool{"4": true}}
	stats, err := Load(context.Background(), rows, "q", rec)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Rows)
	assert.Equal(t, 3, stats.Docs)
	assert.Equal(t, 1, stats.Rejected)
	require.Len(t, rec.indexed, 3)
	assert.Equal(t, map[string][]string{"color": {"red"}, "tags": {"a", "b"}}, rec.indexed[0].Fields)
	assert.Equal(t, "3", rec.indexed[2].ID)
	assert.Empty(t, rec.indexed[2].Fields)
}

func TestLoadStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, fakeRows{{DocID: "1", Field: "color", Value: "red"}}, "q", &recorder{})
	assert.ErrorIs(t, err, context.Canceled)
}
