package mapper

import (
	"math"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/source"
)

// MapTaxon flattens a taxon object. The reference it was loaded from becomes
// the document's ws_ref. Unknown scalar fields are carried along verbatim.
func (m *Mapper) MapTaxon(ref source.Reference, obj *source.Object) (document.Taxon, error) {
	if obj == nil || obj.Data == nil {
		return document.Taxon{}, malformed("taxon %s has no data", ref)
	}
	raw, ok := obj.Data[document.TaxonKeyField]
	if !ok || raw == nil || raw == "" {
		return document.Taxon{}, malformed("taxon %s is missing taxonomy_id", ref)
	}
	if f, isFloat := raw.(float64); isFloat && f != math.Trunc(f) {
		return document.Taxon{}, malformed("taxon %s has a non-integer taxonomy_id", ref)
	}

	var t document.Taxon
	extra, err := document.Decode(obj.Data, &t)
	if err != nil {
		return document.Taxon{}, malformed("taxon %s: %v", ref, err)
	}

	t.WSRef = ref.Raw
	t.Extra = flatExtra(extra)

	m.logger.Trace("mapped taxon", "taxonomy_id", t.TaxonomyID, "ref", ref.Raw)
	return t, nil
}
