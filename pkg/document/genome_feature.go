package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GenomeFeatureKeyField is the unique key of a genome feature core.
const GenomeFeatureKeyField = "genome_feature_id"

// FeatureKeySeparator joins the genome and feature parts of a feature key.
const FeatureKeySeparator = ":"

// ErrInvalidGenomeID is returned by FeatureKey for a genome id that cannot
// form an unambiguous key.
var ErrInvalidGenomeID = errors.New("invalid genome id")

// GenomeFields holds the genome-level values that are copied onto every
// feature document of a genome.
type GenomeFields struct {
	ScientificName string   `json:"scientific_name,omitempty" mapstructure:"scientific_name"`
	Domain         string   `json:"domain,omitempty" mapstructure:"domain"`
	GenomeSource   string   `json:"genome_source,omitempty" mapstructure:"genome_source"`
	ObjectName     string   `json:"object_name,omitempty" mapstructure:"object_name"`
	Taxonomy       string   `json:"taxonomy,omitempty" mapstructure:"taxonomy"`
	WorkspaceName  string   `json:"workspace_name,omitempty" mapstructure:"workspace_name"`
	GeneticCode    string   `json:"genetic_code,omitempty" mapstructure:"genetic_code"`
	MD5            string   `json:"md5,omitempty" mapstructure:"md5"`
	TaxID          string   `json:"tax_id,omitempty" mapstructure:"tax_id"`
	AssemblyRef    string   `json:"assembly_ref,omitempty" mapstructure:"assembly_ref"`
	TaxonomyRef    string   `json:"taxonomy_ref,omitempty" mapstructure:"taxonomy_ref"`
	RefseqCategory string   `json:"refseq_category,omitempty" mapstructure:"refseq_category"`
	SaveDate       string   `json:"save_date,omitempty" mapstructure:"save_date"`
	GenomeDNASize  *int64   `json:"genome_dna_size,omitempty" mapstructure:"genome_dna_size"`
	NumCDS         *int64   `json:"num_cds,omitempty" mapstructure:"num_cds"`
	NumContigs     *int64   `json:"num_contigs,omitempty" mapstructure:"num_contigs"`
	Complete       *int64   `json:"complete,omitempty" mapstructure:"complete"`
	GCContent      *float64 `json:"gc_content,omitempty" mapstructure:"gc_content"`
}

// GenomeFeature is one flattened genome feature record. A genome without
// features is represented by a single placeholder whose FeatureID is empty
// and whose GenomeFeatureID equals GenomeID.
type GenomeFeature struct {
	GenomeFeatureID string `json:"genome_feature_id" mapstructure:"genome_feature_id"`
	GenomeID        string `json:"genome_id" mapstructure:"genome_id"`
	FeatureID       string `json:"feature_id,omitempty" mapstructure:"feature_id"`
	WSRef           string `json:"ws_ref,omitempty" mapstructure:"ws_ref"`

	FeatureType           string `json:"feature_type,omitempty" mapstructure:"feature_type"`
	Aliases               string `json:"aliases,omitempty" mapstructure:"aliases"`
	Functions             string `json:"functions,omitempty" mapstructure:"functions"`
	GOOntologyDescription string `json:"go_ontology_description,omitempty" mapstructure:"go_ontology_description"`
	GOOntologyDomain      string `json:"go_ontology_domain,omitempty" mapstructure:"go_ontology_domain"`
	GeneName              string `json:"gene_name,omitempty" mapstructure:"gene_name"`
	LocationContig        string `json:"location_contig,omitempty" mapstructure:"location_contig"`
	LocationStrand        string `json:"location_strand,omitempty" mapstructure:"location_strand"`
	OntologyNamespaces    string `json:"ontology_namespaces,omitempty" mapstructure:"ontology_namespaces"`
	OntologyIDs           string `json:"ontology_ids,omitempty" mapstructure:"ontology_ids"`
	OntologyNames         string `json:"ontology_names,omitempty" mapstructure:"ontology_names"`
	OntologyLineages      string `json:"ontology_lineages,omitempty" mapstructure:"ontology_lineages"`

	DNASequenceLength        *int64 `json:"dna_sequence_length,omitempty" mapstructure:"dna_sequence_length"`
	LocationBegin            *int64 `json:"location_begin,omitempty" mapstructure:"location_begin"`
	LocationEnd              *int64 `json:"location_end,omitempty" mapstructure:"location_end"`
	ProteinTranslationLength *int64 `json:"protein_translation_length,omitempty" mapstructure:"protein_translation_length"`

	GenomeFields `mapstructure:",squash"`

	// Extra holds fields with no typed slot. They are written back verbatim.
	Extra map[string]any `json:"-" mapstructure:"-"`
}

// FeatureKey builds the composite key of a feature document as
// genome_id:feature_id, or the bare genome id when featureID is empty.
//
// The genome id must be non-empty and must not contain FeatureKeySeparator;
// ErrInvalidGenomeID is returned otherwise. Feature ids may contain it, since
// the key always splits at the first separator. Two distinct (genome, feature)
// pairs therefore never share a key.
func FeatureKey(genomeID, featureID string) (string, error) {
	if genomeID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGenomeID)
	}
	if strings.Contains(genomeID, FeatureKeySeparator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidGenomeID, genomeID, FeatureKeySeparator)
	}
	if featureID == "" {
		return genomeID, nil
	}
	return genomeID + FeatureKeySeparator + featureID, nil
}

// Fields flattens the feature into a Document.
func (f GenomeFeature) Fields() Document {
	doc := make(Document, 40)
	w := fieldWriter{doc: doc}

	w.str("genome_feature_id", f.GenomeFeatureID)
	w.str("genome_id", f.GenomeID)
	w.str("feature_id", f.FeatureID)
	w.str("ws_ref", f.WSRef)

	w.str("feature_type", f.FeatureType)
	w.str("aliases", f.Aliases)
	w.str("functions", f.Functions)
	w.str("go_ontology_description", f.GOOntologyDescription)
	w.str("go_ontology_domain", f.GOOntologyDomain)
	w.str("gene_name", f.GeneName)
	w.str("location_contig", f.LocationContig)
	w.str("location_strand", f.LocationStrand)
	w.str("ontology_namespaces", f.OntologyNamespaces)
	w.str("ontology_ids", f.OntologyIDs)
	w.str("ontology_names", f.OntologyNames)
	w.str("ontology_lineages", f.OntologyLineages)
	w.int("dna_sequence_length", f.DNASequenceLength)
	w.int("location_begin", f.LocationBegin)
	w.int("location_end", f.LocationEnd)
	w.int("protein_translation_length", f.ProteinTranslationLength)

	f.GenomeFields.write(w)
	w.extra(f.Extra)
	return doc
}

func (g GenomeFields) write(w fieldWriter) {
	w.str("scientific_name", g.ScientificName)
	w.str("domain", g.Domain)
	w.str("genome_source", g.GenomeSource)
	w.str("object_name", g.ObjectName)
	w.str("taxonomy", g.Taxonomy)
	w.str("workspace_name", g.WorkspaceName)
	w.str("genetic_code", g.GeneticCode)
	w.str("md5", g.MD5)
	w.str("tax_id", g.TaxID)
	w.str("assembly_ref", g.AssemblyRef)
	w.str("taxonomy_ref", g.TaxonomyRef)
	w.str("refseq_category", g.RefseqCategory)
	w.str("save_date", g.SaveDate)
	w.int("genome_dna_size", g.GenomeDNASize)
	w.int("num_cds", g.NumCDS)
	w.int("num_contigs", g.NumContigs)
	w.int("complete", g.Complete)
	w.float("gc_content", g.GCContent)
}

// GenomeFieldsDocument returns only the genome-level part of the feature.
func (f GenomeFeature) GenomeFieldsDocument() Document {
	doc := make(Document, 20)
	f.GenomeFields.write(fieldWriter{doc: doc})
	return doc
}

// GenomeFeatureFromDocument decodes a stored document into its typed form.
func GenomeFeatureFromDocument(doc Document) (GenomeFeature, error) {
	var f GenomeFeature
	extra, err := Decode(doc, &f)
	if err != nil {
		return GenomeFeature{}, fmt.Errorf("error decoding genome feature document: %w", err)
	}
	f.Extra = extra
	return f, nil
}

// MarshalJSON encodes the flattened document, extra fields included.
func (f GenomeFeature) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Fields())
}

// UnmarshalJSON decodes a flattened document, collecting unknown fields
// into Extra.
func (f *GenomeFeature) UnmarshalJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out, err := GenomeFeatureFromDocument(doc)
	if err != nil {
		return err
	}
	*f = out
	return nil
}
