package bleve

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var taxa = search.Core{Name: "taxonomy_ci", Kind: search.KindTaxon, KeyField: "taxonomy_id"}

func newMemAdapter(t *testing.T, cores ...search.Core) *Adapter {
	t.Helper()
	a, err := NewAdapter(&Config{InMemory: true}, cores, hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBulkUpsertAndFetch(t *testing.T) {
	a := newMemAdapter(t, taxa)
	ctx := context.Background()

	outcomes, err := a.BulkUpsert(ctx, taxa, []document.Document{
		{"taxonomy_id": int64(562), "scientific_name": "Escherichia coli", "aliases": []string{"E. coli"}},
		{"scientific_name": "no key"},
		{"taxonomy_id": int64(9606), "scientific_name": "Homo sapiens"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "562", outcomes[0].Key)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, search.ErrMissingKey)
	assert.NoError(t, outcomes[2].Err)

	got, err := a.FetchByKeys(ctx, taxa, []string{"562", "1", "9606"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, document.Equal(
		document.Document{"taxonomy_id": int64(562), "scientific_name": "Escherichia coli", "aliases": []string{"E. coli"}},
		got["562"],
	))

	// Upsert overwrites.
	_, err = a.BulkUpsert(ctx, taxa, []document.Document{
		{"taxonomy_id": int64(562), "scientific_name": "Escherichia coli K-12"},
	})
	require.NoError(t, err)
	got, err = a.FetchByKeys(ctx, taxa, []string{"562"})
	require.NoError(t, err)
	assert.Equal(t, "Escherichia coli K-12", got["562"]["scientific_name"])
	_, hasAliases := got["562"]["aliases"]
	assert.False(t, hasAliases)
}

func TestFetchKeepsLargeIntegersExact(t *testing.T) {
	a := newMemAdapter(t, taxa)
	ctx := context.Background()

	doc := document.Document{"taxonomy_id": int64(562), "object_size": int64(1<<53 + 1)}
	_, err := a.BulkUpsert(ctx, taxa, []document.Document{doc})
	require.NoError(t, err)

	got, err := a.FetchByKeys(ctx, taxa, []string{"562"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got["562"]["object_size"])
	assert.True(t, document.Equal(doc, got["562"]))
}

func TestQueryOrderingAndWindows(t *testing.T) {
	a := newMemAdapter(t, taxa)
	ctx := context.Background()

	var docs []document.Document
	for i := 25; i > 0; i-- {
		doc := document.Document{"taxonomy_id": int64(1000 + i), "rank": "species"}
		if i%2 == 0 {
			doc["ws_ref"] = fmt.Sprintf("1779/%d_taxon/1", 1000+i)
		}
		docs = append(docs, doc)
	}
	_, err := a.BulkUpsert(ctx, taxa, docs)
	require.NoError(t, err)

	first, err := a.Query(ctx, taxa, search.Query{Offset: 0, Limit: 10})
	require.NoError(t, err)
	second, err := a.Query(ctx, taxa, search.Query{Offset: 10, Limit: 10})
	require.NoError(t, err)
	both, err := a.Query(ctx, taxa, search.Query{Offset: 0, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, 25, first.Total)
	keys := func(p *search.Page) []string {
		var out []string
		for _, d := range p.Docs {
			k, _ := d.Key("taxonomy_id")
			out = append(out, k)
		}
		return out
	}
	assert.Equal(t, append(keys(first), keys(second)...), keys(both))
	assert.Equal(t, "1001", keys(first)[0])

	loaded, err := a.Query(ctx, taxa, search.Query{Offset: 0, Limit: 100, RequireField: "ws_ref"})
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Total)
	for _, d := range loaded.Docs {
		assert.NotEmpty(t, d["ws_ref"])
	}

	past, err := a.Query(ctx, taxa, search.Query{Offset: 100, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, past.Docs)
	assert.Equal(t, 25, past.Total)
}

func TestUnknownCore(t *testing.T) {
	a := newMemAdapter(t, taxa)
	ctx := context.Background()

	ok, err := a.HasCore(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Query(ctx, search.Core{Name: "other", KeyField: "id"}, search.Query{Limit: 1})
	assert.ErrorIs(t, err, search.ErrUnknownCore)
}

func TestOnDiskIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := NewAdapter(&Config{Path: dir}, []search.Core{taxa}, nil)
	require.NoError(t, err)
	_, err = a.BulkUpsert(ctx, taxa, []document.Document{{"taxonomy_id": int64(7), "rank": "genus"}})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := NewAdapter(&Config{Path: dir}, []search.Core{taxa}, nil)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.FetchByKeys(ctx, taxa, []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, "genus", got["7"]["rank"])
}
