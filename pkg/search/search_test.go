package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/document"
)

type stubEngine struct {
	hosted map[string]bool
	err    error
}

func (s *stubEngine) Name() string { return "stub" }
func (s *stubEngine) HasCore(context.Context, string) (bool, error) {
	return false, s.err
}
func (s *stubEngine) BulkUpsert(context.Context, Core, []document.Document) ([]Outcome, error) {
	return nil, nil
}
func (s *stubEngine) FetchByKeys(context.Context, Core, []string) (map[string]document.Document, error) {
	return nil, nil
}
func (s *stubEngine) Query(context.Context, Core, Query) (*Page, error) { return &Page{}, nil }
func (s *stubEngine) Close() error                                     { return nil }

type hostedEngine struct{ stubEngine }

func (h *hostedEngine) HasCore(_ context.Context, name string) (bool, error) {
	return h.hosted[name], nil
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(
		Core{Name: "GenomeFeatures_prod", Kind: KindGenomeFeature},
		Core{Name: "taxonomy_prod", Kind: KindTaxon},
		Core{Name: "scratch", Kind: KindRaw, KeyField: "doc_id"},
	)
	require.NoError(t, err)

	core, err := reg.Lookup("GenomeFeatures_prod")
	require.NoError(t, err)
	assert.Equal(t, "genome_feature_id", core.KeyField)

	core, err = reg.Lookup("taxonomy_prod")
	require.NoError(t, err)
	assert.Equal(t, "taxonomy_id", core.KeyField)

	core, err = reg.Lookup("scratch")
	require.NoError(t, err)
	assert.Equal(t, "doc_id", core.KeyField)

	_, err = reg.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownCore)

	names := []string{}
	for _, c := range reg.Cores() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"GenomeFeatures_prod", "scratch", "taxonomy_prod"}, names)

	_, err = NewRegistry(Core{Name: "bad", Kind: "feature"})
	assert.Error(t, err)
	_, err = NewRegistry(Core{Kind: KindRaw})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	reg, err := NewRegistry(
		Core{Name: "genomes", Kind: KindGenomeFeature},
		Core{Name: "taxa", Kind: KindTaxon},
	)
	require.NoError(t, err)
	engine := &hostedEngine{stubEngine{hosted: map[string]bool{"genomes": true}}}
	ctx := context.Background()

	core, err := Resolve(ctx, reg, engine, "genomes")
	require.NoError(t, err)
	assert.Equal(t, KindGenomeFeature, core.Kind)

	_, err = Resolve(ctx, reg, engine, "taxa")
	assert.ErrorIs(t, err, ErrUnknownCore, "configured but not hosted")

	_, err = Resolve(ctx, reg, engine, "missing")
	assert.ErrorIs(t, err, ErrUnknownCore)

	broken := &stubEngine{err: errors.New("connection refused")}
	_, err = Resolve(ctx, reg, broken, "genomes")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownCore)
}
