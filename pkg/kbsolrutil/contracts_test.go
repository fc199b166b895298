package kbsolrutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenomesParamsKeepUnknownFields(t *testing.T) {
	in := `{
		"solr_core": "GenomeFeatures_prod",
		"create_report": 1,
		"genomes": [
			{"ref": "15792/1/3", "id": "GCF_000005845.2", "source": "RefSeq", "assembly_level": "Complete Genome"}
		],
		"batch_label": "weekly"
	}`

	var p IndexGenomesInSolrParams
	require.NoError(t, json.Unmarshal([]byte(in), &p))

	assert.Equal(t, "GenomeFeatures_prod", p.SolrCore)
	assert.Equal(t, int64(1), p.CreateReport)
	assert.Equal(t, map[string]any{"batch_label": "weekly"}, p.Extra)
	require.Len(t, p.Genomes, 1)
	assert.Equal(t, "15792/1/3", p.Genomes[0].Ref)
	assert.Equal(t, "RefSeq", p.Genomes[0].Source)
	assert.Equal(t, map[string]any{"assembly_level": "Complete Genome"}, p.Genomes[0].Extra)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestListParamsNumbers(t *testing.T) {
	var p ListSolrDocsParams
	require.NoError(t, json.Unmarshal([]byte(`{"solr_core":"taxonomy_prod","row_start":0,"row_count":25,"page_token":12345678901}`), &p))

	require.NotNil(t, p.RowStart)
	require.NotNil(t, p.RowCount)
	assert.Equal(t, int64(0), *p.RowStart)
	assert.Equal(t, int64(25), *p.RowCount)
	assert.Equal(t, json.Number("12345678901"), p.Extra["page_token"])

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"solr_core":"taxonomy_prod","row_start":0,"row_count":25,"page_token":12345678901}`, string(out))
}

func TestTypedFieldsWinOverExtra(t *testing.T) {
	p := LoadedReferenceTaxonData{WSRef: "1779/562_taxon/1", Extra: map[string]any{"ws_ref": "other", "note": "x"}}
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ws_ref":"1779/562_taxon/1","note":"x"}`, string(out))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  interface{ Validate() error }
		wantErr bool
	}{
		{name: "genomes ok", params: IndexGenomesInSolrParams{SolrCore: "c", Genomes: []KBaseReferenceGenomeData{{Ref: "1/2/3"}}}},
		{name: "genome missing ref", params: IndexGenomesInSolrParams{SolrCore: "c", Genomes: []KBaseReferenceGenomeData{{ID: "x"}}}, wantErr: true},
		{name: "taxa ok", params: IndexTaxaInSolrParams{SolrCore: "c", Taxa: []LoadedReferenceTaxonData{{WSRef: "1/2/3"}}}},
		{name: "taxa empty", params: IndexTaxaInSolrParams{SolrCore: "c"}, wantErr: true},
		{name: "docs ok", params: IndexInSolrParams{SearchCore: "c", DocData: []map[string]string{{"id": "1"}}}},
		{name: "docs missing core", params: IndexInSolrParams{DocData: []map[string]string{{"id": "1"}}}, wantErr: true},
		{name: "list ok", params: ListSolrDocsParams{SolrCore: "c"}},
		{name: "list missing core", params: ListSolrDocsParams{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
				return
			}
			assert.NoError(t, err)
		})
	}
}
