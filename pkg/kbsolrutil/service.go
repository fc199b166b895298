// Package kbsolrutil is the request/response surface of the indexer: typed
// parameter contracts with validation, and a Service that turns them into
// indexing runs and listings.
package kbsolrutil

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/indexer"
	"github.com/kbase/kbsolrutil/pkg/listing"
)

// Indexer runs indexing jobs. *indexer.Orchestrator implements it.
type Indexer interface {
	IndexGenomes(ctx context.Context, core string, refs []string, createReport bool) (*indexer.RunResult, error)
	IndexTaxa(ctx context.Context, core string, refs []string, createReport bool) (*indexer.RunResult, error)
	IndexRawDocuments(ctx context.Context, core string, docs []document.Document, createReport bool) (*indexer.RunResult, error)
}

// Lister serves pages of a core. *listing.Reader implements it.
type Lister interface {
	DefaultRows() int
	ListGenomes(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*listing.Page, error)
	ListTaxa(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*listing.Page, error)
	ListLoadedTaxa(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*listing.Page, error)
}

// IndexResult is the response of the indexing operations.
type IndexResult struct {
	ReportRef   string           `json:"report_ref,omitempty"`
	ReportError string           `json:"report_error,omitempty"`
	Summary     *indexer.Summary `json:"summary"`
}

// ListResult is the response of ListSolrGenomes and ListSolrTaxa.
type ListResult struct {
	Docs        []document.Document `json:"docs"`
	RowStart    int                 `json:"row_start"`
	RowCount    int                 `json:"row_count"`
	Total       int                 `json:"total"`
	ReportRef   string              `json:"report_ref,omitempty"`
	ReportError string              `json:"report_error,omitempty"`
}

// LoadedTaxaResult is the response of ListLoadedTaxa.
type LoadedTaxaResult struct {
	Taxa        []listing.LoadedTaxon `json:"taxa"`
	RowStart    int                   `json:"row_start"`
	RowCount    int                   `json:"row_count"`
	Total       int                   `json:"total"`
	ReportRef   string                `json:"report_ref,omitempty"`
	ReportError string                `json:"report_error,omitempty"`
}

// Service implements the six public operations.
type Service struct {
	indexer Indexer
	lister  Lister
	logger  hclog.Logger
}

// NewService creates a service.
func NewService(idx Indexer, lister Lister, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		indexer: idx,
		lister:  lister,
		logger:  logger.Named("service"),
	}
}

// IndexGenomesInSolr indexes the features of each referenced genome.
func (s *Service) IndexGenomesInSolr(ctx context.Context, params IndexGenomesInSolrParams) (*IndexResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	refs := make([]string, len(params.Genomes))
	for i, g := range params.Genomes {
		refs[i] = g.Ref
	}

	s.logger.Info("indexing genomes", "core", params.SolrCore, "genomes", len(refs))
	res, err := s.indexer.IndexGenomes(ctx, params.SolrCore, refs, params.CreateReport != 0)
	if err != nil {
		return nil, err
	}
	return indexResult(res), nil
}

// IndexTaxaInSolr indexes each referenced taxon.
func (s *Service) IndexTaxaInSolr(ctx context.Context, params IndexTaxaInSolrParams) (*IndexResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	refs := make([]string, len(params.Taxa))
	for i, t := range params.Taxa {
		refs[i] = t.WSRef
	}

	s.logger.Info("indexing taxa", "core", params.SolrCore, "taxa", len(refs))
	res, err := s.indexer.IndexTaxa(ctx, params.SolrCore, refs, params.CreateReport != 0)
	if err != nil {
		return nil, err
	}
	return indexResult(res), nil
}

// IndexInSolr submits caller-built documents without mapping them. Documents
// identical to what the core holds are skipped.
func (s *Service) IndexInSolr(ctx context.Context, params IndexInSolrParams) (*IndexResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	docs := make([]document.Document, len(params.DocData))
	for i, data := range params.DocData {
		doc := make(document.Document, len(data))
		for k, v := range data {
			doc[k] = v
		}
		docs[i] = doc
	}

	s.logger.Info("indexing documents", "core", params.SearchCore, "documents", len(docs))
	res, err := s.indexer.IndexRawDocuments(ctx, params.SearchCore, docs, false)
	if err != nil {
		return nil, err
	}
	return indexResult(res), nil
}

// ListSolrGenomes returns a page of a genome feature core.
func (s *Service) ListSolrGenomes(ctx context.Context, params ListSolrDocsParams) (*ListResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start, count := s.window(params)
	page, err := s.lister.ListGenomes(ctx, params.SolrCore, start, count, params.CreateReport != 0)
	if err != nil {
		return nil, err
	}
	return listResult(page), nil
}

// ListSolrTaxa returns a page of a taxon core.
func (s *Service) ListSolrTaxa(ctx context.Context, params ListSolrDocsParams) (*ListResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start, count := s.window(params)
	page, err := s.lister.ListTaxa(ctx, params.SolrCore, start, count, params.CreateReport != 0)
	if err != nil {
		return nil, err
	}
	return listResult(page), nil
}

// ListLoadedTaxa returns a page of the taxa that were loaded from an object,
// each paired with its reference.
func (s *Service) ListLoadedTaxa(ctx context.Context, params ListSolrDocsParams) (*LoadedTaxaResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start, count := s.window(params)
	page, err := s.lister.ListLoadedTaxa(ctx, params.SolrCore, start, count, params.CreateReport != 0)
	if err != nil {
		return nil, err
	}

	out := &LoadedTaxaResult{
		Taxa:      page.Taxa,
		RowStart:  page.RowStart,
		RowCount:  page.RowCount,
		Total:     page.Total,
		ReportRef: page.ReportRef,
	}
	if out.Taxa == nil {
		out.Taxa = []listing.LoadedTaxon{}
	}
	if page.ReportErr != nil {
		out.ReportError = page.ReportErr.Error()
	}
	return out, nil
}

// window resolves omitted row bounds. Explicit values are passed through
// unchanged so the reader can reject them.
func (s *Service) window(params ListSolrDocsParams) (int, int) {
	start, count := 0, s.lister.DefaultRows()
	if params.RowStart != nil {
		start = int(*params.RowStart)
	}
	if params.RowCount != nil {
		count = int(*params.RowCount)
	}
	return start, count
}

func indexResult(res *indexer.RunResult) *IndexResult {
	out := &IndexResult{Summary: res.Summary, ReportRef: res.ReportRef}
	if res.ReportErr != nil {
		out.ReportError = res.ReportErr.Error()
	}
	return out
}

func listResult(page *listing.Page) *ListResult {
	out := &ListResult{
		Docs:      page.Docs,
		RowStart:  page.RowStart,
		RowCount:  page.RowCount,
		Total:     page.Total,
		ReportRef: page.ReportRef,
	}
	if out.Docs == nil {
		out.Docs = []document.Document{}
	}
	if page.ReportErr != nil {
		out.ReportError = page.ReportErr.Error()
	}
	return out
}
