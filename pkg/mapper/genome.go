package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/source"
)

type genomeObject struct {
	ID             string   `mapstructure:"id"`
	ScientificName string   `mapstructure:"scientific_name"`
	Domain         string   `mapstructure:"domain"`
	Source         string   `mapstructure:"source"`
	Taxonomy       string   `mapstructure:"taxonomy"`
	TaxonRef       string   `mapstructure:"taxon_ref"`
	AssemblyRef    string   `mapstructure:"assembly_ref"`
	GeneticCode    string   `mapstructure:"genetic_code"`
	MD5            string   `mapstructure:"md5"`
	TaxID          string   `mapstructure:"tax_id"`
	RefseqCategory string   `mapstructure:"refseq_category"`
	DNASize        *int64   `mapstructure:"dna_size"`
	NumContigs     *int64   `mapstructure:"num_contigs"`
	ContigIDs      []string `mapstructure:"contig_ids"`
	GCContent      *float64 `mapstructure:"gc_content"`
	Complete       *int64   `mapstructure:"complete"`
	CDSs           []any    `mapstructure:"cdss"`

	Features          []featureObject `mapstructure:"features"`
	NonCodingFeatures []featureObject `mapstructure:"non_coding_features"`
}

type featureObject struct {
	ID                       string                    `mapstructure:"id"`
	Type                     string                    `mapstructure:"type"`
	GeneName                 string                    `mapstructure:"gene_name"`
	Aliases                  []any                     `mapstructure:"aliases"`
	Functions                []string                  `mapstructure:"functions"`
	Function                 string                    `mapstructure:"function"`
	Location                 []any                     `mapstructure:"location"`
	DNASequenceLength        *int64                    `mapstructure:"dna_sequence_length"`
	ProteinTranslation       string                    `mapstructure:"protein_translation"`
	ProteinTranslationLength *int64                    `mapstructure:"protein_translation_length"`
	OntologyTerms            map[string]map[string]any `mapstructure:"ontology_terms"`
}

// MapGenome flattens a genome into one document per feature. Features come
// first, then non-coding features, each in source order. A genome without
// features yields a single placeholder document keyed by the genome id.
func (m *Mapper) MapGenome(ref source.Reference, obj *source.Object) ([]document.GenomeFeature, error) {
	if obj == nil || obj.Data == nil {
		return nil, malformed("genome %s has no data", ref)
	}

	var g genomeObject
	if err := decode(obj.Data, &g); err != nil {
		return nil, malformed("genome %s: %v", ref, err)
	}
	if g.ID == "" {
		return nil, malformed("genome %s is missing id", ref)
	}

	genomeKey, err := document.FeatureKey(g.ID, "")
	if err != nil {
		return nil, malformed("genome %s: %v", ref, err)
	}

	genome := m.genomeFields(g, obj)

	features := make([]featureObject, 0, len(g.Features)+len(g.NonCodingFeatures))
	features = append(features, g.Features...)
	features = append(features, g.NonCodingFeatures...)

	if len(features) == 0 {
		m.logger.Debug("genome has no features, emitting placeholder", "genome_id", g.ID, "ref", ref.Raw)
		return []document.GenomeFeature{{
			GenomeFeatureID: genomeKey,
			GenomeID:        g.ID,
			WSRef:           ref.Raw,
			GenomeFields:    genome,
		}}, nil
	}

	seen := make(map[string]struct{}, len(features))
	out := make([]document.GenomeFeature, 0, len(features))
	for i, f := range features {
		if f.ID == "" {
			return nil, malformed("genome %s feature %d is missing id", g.ID, i)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, malformed("genome %s has duplicate feature id %q", g.ID, f.ID)
		}
		seen[f.ID] = struct{}{}

		doc, err := mapFeature(g.ID, ref, f)
		if err != nil {
			return nil, err
		}
		doc.GenomeFields = genome
		out = append(out, doc)
	}

	m.logger.Trace("mapped genome", "genome_id", g.ID, "documents", len(out))
	return out, nil
}

func (m *Mapper) genomeFields(g genomeObject, obj *source.Object) document.GenomeFields {
	fields := document.GenomeFields{
		ScientificName: g.ScientificName,
		Domain:         g.Domain,
		GenomeSource:   g.Source,
		ObjectName:     obj.Info.ObjectName,
		Taxonomy:       g.Taxonomy,
		WorkspaceName:  obj.Info.WorkspaceName,
		GeneticCode:    g.GeneticCode,
		MD5:            g.MD5,
		TaxID:          g.TaxID,
		AssemblyRef:    g.AssemblyRef,
		TaxonomyRef:    g.TaxonRef,
		RefseqCategory: g.RefseqCategory,
		SaveDate:       normalizeDate(obj.Info.SaveDate),
		GenomeDNASize:  g.DNASize,
		NumContigs:     g.NumContigs,
		Complete:       g.Complete,
		GCContent:      g.GCContent,
	}

	if fields.NumContigs == nil && len(g.ContigIDs) > 0 {
		fields.NumContigs = document.Int64(int64(len(g.ContigIDs)))
	}

	switch {
	case len(g.CDSs) > 0:
		fields.NumCDS = document.Int64(int64(len(g.CDSs)))
	default:
		var n int64
		for _, f := range g.Features {
			if strings.EqualFold(f.Type, "CDS") {
				n++
			}
		}
		for _, f := range g.NonCodingFeatures {
			if strings.EqualFold(f.Type, "CDS") {
				n++
			}
		}
		if n > 0 {
			fields.NumCDS = document.Int64(n)
		}
	}

	return fields
}

func mapFeature(genomeID string, ref source.Reference, f featureObject) (document.GenomeFeature, error) {
	key, err := document.FeatureKey(genomeID, f.ID)
	if err != nil {
		return document.GenomeFeature{}, malformed("feature %q: %v", f.ID, err)
	}
	doc := document.GenomeFeature{
		GenomeFeatureID:          key,
		GenomeID:                 genomeID,
		FeatureID:                f.ID,
		WSRef:                    ref.Raw,
		FeatureType:              f.Type,
		GeneName:                 f.GeneName,
		DNASequenceLength:        f.DNASequenceLength,
		ProteinTranslationLength: f.ProteinTranslationLength,
	}

	aliases, gene := flattenAliases(f.Aliases)
	doc.Aliases = document.JoinList(aliases)
	if doc.GeneName == "" {
		doc.GeneName = gene
	}

	functions := f.Functions
	if len(functions) == 0 && f.Function != "" {
		functions = []string{f.Function}
	}
	doc.Functions = document.JoinList(functions)

	if doc.ProteinTranslationLength == nil && f.ProteinTranslation != "" {
		doc.ProteinTranslationLength = document.Int64(int64(len(f.ProteinTranslation)))
	}

	if len(f.Location) > 0 {
		loc, err := parseLocation(f.Location)
		if err != nil {
			return document.GenomeFeature{}, malformed("genome %s feature %s: %v", genomeID, f.ID, err)
		}
		doc.LocationContig = loc.contig
		doc.LocationStrand = loc.strand
		doc.LocationBegin = document.Int64(loc.begin)
		doc.LocationEnd = document.Int64(loc.end())
		if doc.DNASequenceLength == nil {
			doc.DNASequenceLength = document.Int64(loc.total)
		}
	}

	applyOntology(&doc, f.OntologyTerms)
	return doc, nil
}

// flattenAliases renders aliases as "type:value" for [type, value] pairs and
// verbatim for plain strings. It also returns the first alias of type
// "gene", if any.
func flattenAliases(raw []any) ([]string, string) {
	var (
		out  []string
		gene string
	)
	for _, a := range raw {
		switch v := a.(type) {
		case string:
			out = append(out, v)
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) == 2 && gene == "" && parts[0] == "gene" {
				gene = parts[1]
			}
			out = append(out, strings.Join(parts, ":"))
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, gene
}

type location struct {
	contig string
	begin  int64
	strand string
	length int64
	total  int64
}

func (l location) end() int64 {
	if l.strand == "-" {
		return l.begin - l.length + 1
	}
	return l.begin + l.length - 1
}

// parseLocation reads [[contig, begin, strand, length], ...]. The first
// segment positions the feature; the total length covers all segments.
func parseLocation(raw []any) (location, error) {
	var loc location
	for i, seg := range raw {
		parts, ok := seg.([]any)
		if !ok || len(parts) != 4 {
			return location{}, fmt.Errorf("location segment %d must be [contig, begin, strand, length]", i)
		}

		var s struct {
			Contig string `mapstructure:"contig"`
			Begin  int64  `mapstructure:"begin"`
			Strand string `mapstructure:"strand"`
			Length int64  `mapstructure:"length"`
		}
		if err := decode(map[string]any{
			"contig": parts[0], "begin": parts[1], "strand": parts[2], "length": parts[3],
		}, &s); err != nil {
			return location{}, fmt.Errorf("location segment %d: %w", i, err)
		}

		if i == 0 {
			loc = location{contig: s.Contig, begin: s.Begin, strand: s.Strand, length: s.Length}
		}
		loc.total += s.Length
	}
	return loc, nil
}

// applyOntology projects ontology_terms ({namespace: {term_id: data}}) into
// parallel lists sorted by namespace and then term id. GO terms also fill the
// go_ontology_* fields.
func applyOntology(doc *document.GenomeFeature, terms map[string]map[string]any) {
	if len(terms) == 0 {
		return
	}

	namespaces := make([]string, 0, len(terms))
	for ns := range terms {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var nsList, ids, names, lineages, goNames, goDomains []string
	for _, ns := range namespaces {
		termIDs := make([]string, 0, len(terms[ns]))
		for id := range terms[ns] {
			termIDs = append(termIDs, id)
		}
		sort.Strings(termIDs)

		for _, id := range termIDs {
			name, lineage, domain := termDetails(terms[ns][id])
			nsList = append(nsList, ns)
			ids = append(ids, id)
			names = append(names, name)
			lineages = append(lineages, lineage)

			if strings.EqualFold(ns, "GO") {
				goNames = append(goNames, name)
				if domain != "" {
					goDomains = append(goDomains, domain)
				}
			}
		}
	}

	doc.OntologyNamespaces = document.JoinList(nsList)
	doc.OntologyIDs = document.JoinList(ids)
	doc.OntologyNames = document.JoinList(names)
	doc.OntologyLineages = document.JoinList(lineages)
	doc.GOOntologyDescription = document.JoinList(goNames)
	doc.GOOntologyDomain = document.JoinList(goDomains)
}

func termDetails(v any) (name, lineage, domain string) {
	data, ok := v.(map[string]any)
	if !ok {
		return "", "", ""
	}

	var t struct {
		TermName string   `mapstructure:"term_name"`
		Name     string   `mapstructure:"name"`
		Lineage  []string `mapstructure:"term_lineage"`
		Domain   string   `mapstructure:"domain"`
	}
	if err := decode(data, &t); err != nil {
		return "", "", ""
	}

	name = t.TermName
	if name == "" {
		name = t.Name
	}
	return name, strings.Join(t.Lineage, ","), t.Domain
}
