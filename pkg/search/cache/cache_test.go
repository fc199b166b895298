package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var taxa = search.Core{Name: "taxonomy_ci", Kind: search.KindTaxon, KeyField: "taxonomy_id"}

type countingEngine struct {
	search.Engine
	queries   int
	upsertErr error
}

func (c *countingEngine) Query(_ context.Context, _ search.Core, q search.Query) (*search.Page, error) {
	c.queries++
	return &search.Page{
		Docs:  []document.Document{{"taxonomy_id": int64(q.Offset + 1)}},
		Total: 42,
	}, nil
}

func (c *countingEngine) BulkUpsert(_ context.Context, _ search.Core, docs []document.Document) ([]search.Outcome, error) {
	if c.upsertErr != nil {
		return nil, c.upsertErr
	}
	return make([]search.Outcome, len(docs)), nil
}

func TestQueryIsCached(t *testing.T) {
	inner := &countingEngine{}
	store := NewMemoryStore()
	e := New(inner, store, nil)
	ctx := context.Background()

	first, err := e.Query(ctx, taxa, search.Query{Offset: 0, Limit: 10})
	require.NoError(t, err)
	second, err := e.Query(ctx, taxa, search.Query{Offset: 0, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.queries)
	assert.Equal(t, first.Total, second.Total)
	k, ok := second.Docs[0].Key("taxonomy_id")
	require.True(t, ok)
	assert.Equal(t, "1", k)

	_, err = e.Query(ctx, taxa, search.Query{Offset: 10, Limit: 10})
	require.NoError(t, err)
	_, err = e.Query(ctx, taxa, search.Query{Offset: 0, Limit: 10, RequireField: "ws_ref"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.queries)
	assert.Equal(t, 3, store.Len())
}

func TestUpsertInvalidatesCore(t *testing.T) {
	tests := []struct {
		name      string
		upsertErr error
	}{
		{name: "successful write"},
		{name: "failed write", upsertErr: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingEngine{upsertErr: tt.upsertErr}
			store := NewMemoryStore()
			e := New(inner, store, nil)
			ctx := context.Background()

			other := search.Core{Name: "other", Kind: search.KindRaw, KeyField: "id"}
			_, _ = e.Query(ctx, taxa, search.Query{Limit: 10})
			_, _ = e.Query(ctx, other, search.Query{Limit: 10})
			require.Equal(t, 2, store.Len())

			_, err := e.BulkUpsert(ctx, taxa, []document.Document{{"taxonomy_id": int64(1)}})
			if tt.upsertErr != nil {
				assert.ErrorIs(t, err, tt.upsertErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, store.Len())

			_, _ = e.Query(ctx, taxa, search.Query{Limit: 10})
			assert.Equal(t, 3, inner.queries)
		})
	}
}
