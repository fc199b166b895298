package mapper

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/source"
)

func testRef(t *testing.T, raw string) source.Reference {
	t.Helper()
	ref, err := source.ParseReference(raw)
	require.NoError(t, err)
	return ref
}

func testGenome(features ...map[string]any) *source.Object {
	list := make([]any, 0, len(features))
	for _, f := range features {
		list = append(list, f)
	}
	return &source.Object{
		Info: source.ObjectInfo{
			WorkspaceName: "ReferenceDataManager",
			ObjectName:    "GCF_000005845.2",
			SaveDate:      "2021-03-04T10:11:12+0000",
		},
		Data: map[string]any{
			"id":              "g1",
			"scientific_name": "Escherichia coli str. K-12",
			"domain":          "Bacteria",
			"taxonomy":        "Bacteria; Proteobacteria; Gammaproteobacteria",
			"taxon_ref":       "1779/562_taxon/1",
			"assembly_ref":    "12/35/1",
			"genetic_code":    float64(11),
			"dna_size":        float64(4641652),
			"contig_ids":      []any{"NC_000913.3"},
			"gc_content":      0.5079,
			"source":          "RefSeq",
			"features":        list,
		},
	}
}

func TestMapGenomeOneDocumentPerFeature(t *testing.T) {
	m := New(hclog.NewNullLogger())
	obj := testGenome(
		map[string]any{
			"id":        "f1",
			"type":      "CDS",
			"aliases":   []any{[]any{"gene", "thrL"}, "b0001"},
			"functions": []any{"thr operon leader peptide"},
			"location":  []any{[]any{"NC_000913.3", float64(190), "+", float64(66)}},
			"ontology_terms": map[string]any{
				"GO": map[string]any{
					"GO:0009088": map[string]any{"term_name": "threonine biosynthetic process", "domain": "biological_process"},
				},
				"EC": map[string]any{
					"EC:2.7.2.4": map[string]any{"term_name": "aspartate kinase; homoserine dehydrogenase"},
				},
			},
		},
		map[string]any{
			"id":                  "f2",
			"type":                "gene",
			"function":            "hypothetical protein",
			"location":            []any{[]any{"NC_000913.3", float64(5000), "-", float64(300)}},
			"protein_translation": "MKR",
		},
	)

	docs, err := m.MapGenome(testRef(t, "12/34/1"), obj)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "g1:f1", docs[0].GenomeFeatureID)
	assert.Equal(t, "g1:f2", docs[1].GenomeFeatureID)
	assert.Equal(t, docs[0].GenomeFieldsDocument(), docs[1].GenomeFieldsDocument(),
		"genome-level fields must be identical on every feature")

	f1 := docs[0]
	assert.Equal(t, "12/34/1", f1.WSRef)
	assert.Equal(t, "gene:thrL;b0001", f1.Aliases)
	assert.Equal(t, "thrL", f1.GeneName)
	assert.Equal(t, "thr operon leader peptide", f1.Functions)
	assert.Equal(t, "NC_000913.3", f1.LocationContig)
	assert.Equal(t, int64(190), *f1.LocationBegin)
	assert.Equal(t, int64(255), *f1.LocationEnd)
	assert.Equal(t, int64(66), *f1.DNASequenceLength)
	assert.Equal(t, "EC;GO", f1.OntologyNamespaces)
	assert.Equal(t, "EC:2.7.2.4;GO:0009088", f1.OntologyIDs)
	assert.Equal(t, `aspartate kinase\; homoserine dehydrogenase;threonine biosynthetic process`, f1.OntologyNames)
	assert.Equal(t, "threonine biosynthetic process", f1.GOOntologyDescription)
	assert.Equal(t, "biological_process", f1.GOOntologyDomain)

	f2 := docs[1]
	assert.Equal(t, "hypothetical protein", f2.Functions)
	assert.Equal(t, "-", f2.LocationStrand)
	assert.Equal(t, int64(4701), *f2.LocationEnd)
	assert.Equal(t, int64(3), *f2.ProteinTranslationLength)

	genome := f1.GenomeFields
	assert.Equal(t, "11", genome.GeneticCode)
	assert.Equal(t, "1779/562_taxon/1", genome.TaxonomyRef)
	assert.Equal(t, "2021-03-04T10:11:12Z", genome.SaveDate)
	assert.Equal(t, int64(1), *genome.NumCDS)
	assert.Equal(t, int64(1), *genome.NumContigs)
	assert.Equal(t, int64(4641652), *genome.GenomeDNASize)
	assert.Nil(t, genome.Complete, "absent numerics stay absent")
	assert.Equal(t, "RefSeq", genome.GenomeSource)
	assert.Equal(t, "ReferenceDataManager", genome.WorkspaceName)
}

func TestMapGenomeWithoutFeatures(t *testing.T) {
	m := New(nil)
	docs, err := m.MapGenome(testRef(t, "12/34/1"), testGenome())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	placeholder := docs[0]
	assert.Equal(t, "g1", placeholder.GenomeFeatureID)
	assert.Equal(t, "g1", placeholder.GenomeID)
	assert.Empty(t, placeholder.FeatureID)
	assert.Equal(t, "Escherichia coli str. K-12", placeholder.ScientificName)

	fields := placeholder.Fields()
	_, hasFeatureType := fields["feature_type"]
	assert.False(t, hasFeatureType)
}

func TestMapGenomeKeepsSourceOrder(t *testing.T) {
	m := New(nil)
	obj := testGenome(
		map[string]any{"id": "z"},
		map[string]any{"id": "a"},
	)
	obj.Data["non_coding_features"] = []any{map[string]any{"id": "rna1", "type": "rRNA"}}

	docs, err := m.MapGenome(testRef(t, "1/2/3"), obj)
	require.NoError(t, err)

	var keys []string
	for _, d := range docs {
		keys = append(keys, d.GenomeFeatureID)
	}
	assert.Equal(t, []string{"g1:z", "g1:a", "g1:rna1"}, keys)
}

func TestMapGenomeMalformed(t *testing.T) {
	m := New(nil)
	tests := []struct {
		name string
		obj  *source.Object
	}{
		{name: "nil object", obj: nil},
		{name: "missing genome id", obj: &source.Object{Data: map[string]any{"features": []any{}}}},
		{name: "missing feature id", obj: testGenome(map[string]any{"type": "CDS"})},
		{name: "duplicate feature id", obj: testGenome(map[string]any{"id": "f1"}, map[string]any{"id": "f1"})},
		{name: "bad location", obj: testGenome(map[string]any{"id": "f1", "location": []any{"NC_1"}})},
		{name: "features not a list", obj: &source.Object{Data: map[string]any{"id": "g1", "features": "nope"}}},
		{name: "genome id with key separator", obj: &source.Object{Data: map[string]any{"id": "g:1", "features": []any{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.MapGenome(testRef(t, "1/2/3"), tt.obj)
			assert.ErrorIs(t, err, ErrMalformedSourceObject)
		})
	}
}

func TestMapGenomeIsDeterministic(t *testing.T) {
	m := New(nil)
	obj := testGenome(map[string]any{
		"id": "f1",
		"ontology_terms": map[string]any{
			"SSO": map[string]any{"SSO:1": map[string]any{"term_name": "one"}, "SSO:2": map[string]any{"term_name": "two"}},
			"GO":  map[string]any{"GO:1": map[string]any{"term_name": "go one", "term_lineage": []any{"root", "child"}}},
		},
	})

	first, err := m.MapGenome(testRef(t, "1/2/3"), obj)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := m.MapGenome(testRef(t, "1/2/3"), obj)
		require.NoError(t, err)
		assert.True(t, document.Equal(first[0].Fields(), again[0].Fields()))
	}
	assert.Equal(t, "root,child;;", first[0].OntologyLineages)
}

func TestMapTaxon(t *testing.T) {
	m := New(nil)

	t.Run("full record", func(t *testing.T) {
		obj := &source.Object{Data: map[string]any{
			"taxonomy_id":         float64(562),
			"scientific_name":     "Escherichia coli",
			"scientific_lineage":  "cellular organisms; Bacteria; Proteobacteria",
			"rank":                "species",
			"domain":              "Bacteria",
			"aliases":             []any{"E. coli"},
			"genetic_code":        float64(11),
			"parent_taxon_ref":    "1779/561_taxon/1",
			"GenBank_hidden_flag": float64(1),
			"nested_blob":         map[string]any{"x": 1},
			"curation_note":       "reviewed",
		}}

		tx, err := m.MapTaxon(testRef(t, "1779/562_taxon/1"), obj)
		require.NoError(t, err)
		assert.Equal(t, int64(562), tx.TaxonomyID)
		assert.Equal(t, "1779/562_taxon/1", tx.WSRef)
		assert.Equal(t, []string{"E. coli"}, tx.Aliases)
		assert.Equal(t, int64(11), *tx.GeneticCode)
		assert.Equal(t, int64(1), *tx.GenBankHiddenFlag)
		assert.Nil(t, tx.DivisionID)
		assert.Equal(t, map[string]any{"curation_note": "reviewed"}, tx.Extra)
	})

	t.Run("missing taxonomy id", func(t *testing.T) {
		_, err := m.MapTaxon(testRef(t, "1/2/3"), &source.Object{Data: map[string]any{"scientific_name": "x"}})
		assert.ErrorIs(t, err, ErrMalformedSourceObject)
	})

	t.Run("non-integer taxonomy id", func(t *testing.T) {
		_, err := m.MapTaxon(testRef(t, "1/2/3"), &source.Object{Data: map[string]any{"taxonomy_id": 5.5}})
		assert.ErrorIs(t, err, ErrMalformedSourceObject)

		_, err = m.MapTaxon(testRef(t, "1/2/3"), &source.Object{Data: map[string]any{"taxonomy_id": "abc"}})
		assert.ErrorIs(t, err, ErrMalformedSourceObject)
	})
}
