package kbsolrutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidParams is returned when request parameters fail validation.
var ErrInvalidParams = errors.New("invalid parameters")

// KBaseReferenceGenomeData identifies one reference genome to index. Only Ref
// is used; the rest is carried for the caller's benefit.
type KBaseReferenceGenomeData struct {
	Ref           string `json:"ref"`
	ID            string `json:"id,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
	Accession     string `json:"accession,omitempty"`
	Name          string `json:"name,omitempty"`
	Version       string `json:"version,omitempty"`
	Source        string `json:"source,omitempty"`
	Domain        string `json:"domain,omitempty"`

	Extra map[string]any `json:"-"`
}

type genomeDataFields KBaseReferenceGenomeData

// Validate implements validation.Validatable.
func (g KBaseReferenceGenomeData) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Ref, validation.Required),
	)
}

func (g KBaseReferenceGenomeData) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(genomeDataFields(g), g.Extra)
}

func (g *KBaseReferenceGenomeData) UnmarshalJSON(data []byte) error {
	var fields genomeDataFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*g = KBaseReferenceGenomeData(fields)
	g.Extra = extra
	return nil
}

// LoadedReferenceTaxonData identifies one taxon object to index.
type LoadedReferenceTaxonData struct {
	WSRef string         `json:"ws_ref"`
	Extra map[string]any `json:"-"`
}

type taxonDataFields LoadedReferenceTaxonData

// Validate implements validation.Validatable.
func (t LoadedReferenceTaxonData) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.WSRef, validation.Required),
	)
}

func (t LoadedReferenceTaxonData) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(taxonDataFields(t), t.Extra)
}

func (t *LoadedReferenceTaxonData) UnmarshalJSON(data []byte) error {
	var fields taxonDataFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*t = LoadedReferenceTaxonData(fields)
	t.Extra = extra
	return nil
}

// IndexGenomesInSolrParams is the request of IndexGenomesInSolr.
type IndexGenomesInSolrParams struct {
	Genomes      []KBaseReferenceGenomeData `json:"genomes"`
	SolrCore     string                     `json:"solr_core"`
	CreateReport int64                      `json:"create_report,omitempty"`

	Extra map[string]any `json:"-"`
}

type indexGenomesFields IndexGenomesInSolrParams

// Validate implements validation.Validatable.
func (p IndexGenomesInSolrParams) Validate() error {
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.SolrCore, validation.Required),
		validation.Field(&p.Genomes, validation.Required),
	))
}

func (p IndexGenomesInSolrParams) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(indexGenomesFields(p), p.Extra)
}

func (p *IndexGenomesInSolrParams) UnmarshalJSON(data []byte) error {
	var fields indexGenomesFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*p = IndexGenomesInSolrParams(fields)
	p.Extra = extra
	return nil
}

// IndexTaxaInSolrParams is the request of IndexTaxaInSolr.
type IndexTaxaInSolrParams struct {
	Taxa         []LoadedReferenceTaxonData `json:"taxa"`
	SolrCore     string                     `json:"solr_core"`
	CreateReport int64                      `json:"create_report,omitempty"`

	Extra map[string]any `json:"-"`
}

type indexTaxaFields IndexTaxaInSolrParams

// Validate implements validation.Validatable.
func (p IndexTaxaInSolrParams) Validate() error {
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.SolrCore, validation.Required),
		validation.Field(&p.Taxa, validation.Required),
	))
}

func (p IndexTaxaInSolrParams) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(indexTaxaFields(p), p.Extra)
}

func (p *IndexTaxaInSolrParams) UnmarshalJSON(data []byte) error {
	var fields indexTaxaFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*p = IndexTaxaInSolrParams(fields)
	p.Extra = extra
	return nil
}

// IndexInSolrParams is the request of IndexInSolr. Each entry of DocData is
// submitted as-is.
type IndexInSolrParams struct {
	SearchCore string              `json:"search_core"`
	DocData    []map[string]string `json:"doc_data"`

	Extra map[string]any `json:"-"`
}

type indexDocsFields IndexInSolrParams

// Validate implements validation.Validatable.
func (p IndexInSolrParams) Validate() error {
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.SearchCore, validation.Required),
		validation.Field(&p.DocData, validation.Required),
	))
}

func (p IndexInSolrParams) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(indexDocsFields(p), p.Extra)
}

func (p *IndexInSolrParams) UnmarshalJSON(data []byte) error {
	var fields indexDocsFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*p = IndexInSolrParams(fields)
	p.Extra = extra
	return nil
}

// ListSolrDocsParams is the request of the listing operations. A nil
// RowStart reads from the beginning and a nil RowCount uses the configured
// default page size. Row bounds are checked by the listing reader.
type ListSolrDocsParams struct {
	SolrCore     string `json:"solr_core"`
	RowStart     *int64 `json:"row_start,omitempty"`
	RowCount     *int64 `json:"row_count,omitempty"`
	CreateReport int64  `json:"create_report,omitempty"`

	Extra map[string]any `json:"-"`
}

type listDocsFields ListSolrDocsParams

// Validate implements validation.Validatable.
func (p ListSolrDocsParams) Validate() error {
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.SolrCore, validation.Required),
	))
}

func (p ListSolrDocsParams) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(listDocsFields(p), p.Extra)
}

func (p *ListSolrDocsParams) UnmarshalJSON(data []byte) error {
	var fields listDocsFields
	extra, err := unmarshalWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*p = ListSolrDocsParams(fields)
	p.Extra = extra
	return nil
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidParams, err)
}

// marshalWithExtra encodes fields and merges extra in. Typed fields win over
// extra entries of the same name.
func marshalWithExtra(fields any, extra map[string]any) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil || len(extra) == 0 {
		return raw, err
	}

	var merged map[string]any
	if err := unmarshalNumbers(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra decodes data into fields and returns the members that
// fields has no json tag for.
func unmarshalWithExtra(data []byte, fields any) (map[string]any, error) {
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := unmarshalNumbers(data, &all); err != nil {
		return nil, err
	}

	known := jsonNames(reflect.TypeOf(fields).Elem())
	var extra map[string]any
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra, nil
}

func unmarshalNumbers(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func jsonNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names[name] = struct{}{}
	}
	return names
}
