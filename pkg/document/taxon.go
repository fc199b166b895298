package document

import (
	"encoding/json"
	"fmt"
)

// TaxonKeyField is the unique key of a taxon core.
const TaxonKeyField = "taxonomy_id"

// Taxon is one flattened taxonomy node.
type Taxon struct {
	TaxonomyID        int64    `json:"taxonomy_id" mapstructure:"taxonomy_id"`
	ScientificName    string   `json:"scientific_name,omitempty" mapstructure:"scientific_name"`
	ScientificLineage string   `json:"scientific_lineage,omitempty" mapstructure:"scientific_lineage"`
	Rank              string   `json:"rank,omitempty" mapstructure:"rank"`
	Kingdom           string   `json:"kingdom,omitempty" mapstructure:"kingdom"`
	Domain            string   `json:"domain,omitempty" mapstructure:"domain"`
	WSRef             string   `json:"ws_ref,omitempty" mapstructure:"ws_ref"`
	Aliases           []string `json:"aliases,omitempty" mapstructure:"aliases"`
	GeneticCode       *int64   `json:"genetic_code,omitempty" mapstructure:"genetic_code"`

	// ParentTaxonRef points at another taxon's ws_ref. It may dangle.
	ParentTaxonRef string `json:"parent_taxon_ref,omitempty" mapstructure:"parent_taxon_ref"`

	EMBLCode                 string `json:"embl_code,omitempty" mapstructure:"embl_code"`
	InheritedDivFlag         *int64 `json:"inherited_div_flag,omitempty" mapstructure:"inherited_div_flag"`
	InheritedGCFlag          *int64 `json:"inherited_GC_flag,omitempty" mapstructure:"inherited_GC_flag"`
	MitochondrialGeneticCode *int64 `json:"mitochondrial_genetic_code,omitempty" mapstructure:"mitochondrial_genetic_code"`
	InheritedMGCFlag         *int64 `json:"inherited_MGC_flag,omitempty" mapstructure:"inherited_MGC_flag"`
	GenBankHiddenFlag        *int64 `json:"GenBank_hidden_flag,omitempty" mapstructure:"GenBank_hidden_flag"`
	HiddenSubtreeFlag        *int64 `json:"hidden_subtree_flag,omitempty" mapstructure:"hidden_subtree_flag"`
	DivisionID               *int64 `json:"division_id,omitempty" mapstructure:"division_id"`
	Comments                 string `json:"comments,omitempty" mapstructure:"comments"`

	Extra map[string]any `json:"-" mapstructure:"-"`
}

// Fields flattens the taxon into a Document.
func (t Taxon) Fields() Document {
	doc := make(Document, 20)
	w := fieldWriter{doc: doc}

	doc["taxonomy_id"] = t.TaxonomyID
	w.str("scientific_name", t.ScientificName)
	w.str("scientific_lineage", t.ScientificLineage)
	w.str("rank", t.Rank)
	w.str("kingdom", t.Kingdom)
	w.str("domain", t.Domain)
	w.str("ws_ref", t.WSRef)
	w.strs("aliases", t.Aliases)
	w.int("genetic_code", t.GeneticCode)
	w.str("parent_taxon_ref", t.ParentTaxonRef)
	w.str("embl_code", t.EMBLCode)
	w.int("inherited_div_flag", t.InheritedDivFlag)
	w.int("inherited_GC_flag", t.InheritedGCFlag)
	w.int("mitochondrial_genetic_code", t.MitochondrialGeneticCode)
	w.int("inherited_MGC_flag", t.InheritedMGCFlag)
	w.int("GenBank_hidden_flag", t.GenBankHiddenFlag)
	w.int("hidden_subtree_flag", t.HiddenSubtreeFlag)
	w.int("division_id", t.DivisionID)
	w.str("comments", t.Comments)

	w.extra(t.Extra)
	return doc
}

// TaxonFromDocument decodes a stored document into its typed form.
func TaxonFromDocument(doc Document) (Taxon, error) {
	var t Taxon
	extra, err := Decode(doc, &t)
	if err != nil {
		return Taxon{}, fmt.Errorf("error decoding taxon document: %w", err)
	}
	t.Extra = extra
	return t, nil
}

// MarshalJSON encodes the flattened document, extra fields included.
func (t Taxon) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Fields())
}

// UnmarshalJSON decodes a flattened document, collecting unknown fields
// into Extra.
func (t *Taxon) UnmarshalJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out, err := TaxonFromDocument(doc)
	if err != nil {
		return err
	}
	*t = out
	return nil
}
