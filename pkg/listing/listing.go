// Package listing pages through the documents of a search core in stable key
// order.
package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/report"
	"github.com/kbase/kbsolrutil/pkg/search"
)

// ErrInvalidPageRequest is returned for a negative row start or a
// non-positive row count.
var ErrInvalidPageRequest = errors.New("invalid page request")

const (
	DefaultRows    = 50
	DefaultMaxRows = 1000
)

// Config contains listing configuration.
type Config struct {
	DefaultRows   int           `hcl:"default_rows,optional"`
	MaxRows       int           `hcl:"max_rows,optional"`
	ReportTimeout time.Duration
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.DefaultRows <= 0 {
		c.DefaultRows = DefaultRows
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.DefaultRows > c.MaxRows {
		c.DefaultRows = c.MaxRows
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = 30 * time.Second
	}
}

// Page is one window of a core.
type Page struct {
	Core     string              `json:"core"`
	RowStart int                 `json:"row_start"`
	RowCount int                 `json:"row_count"`
	Total    int                 `json:"total"`
	Docs     []document.Document `json:"docs,omitempty"`
	Taxa     []LoadedTaxon       `json:"taxa,omitempty"`

	ReportRef string `json:"report_ref,omitempty"`
	ReportErr error  `json:"-"`
}

// LoadedTaxon is a taxon together with the reference it was loaded from.
type LoadedTaxon struct {
	Taxon document.Taxon `json:"taxon"`
	Ref   string         `json:"ws_ref"`
}

// Reader serves pages from an engine.
type Reader struct {
	engine   search.Engine
	registry *search.Registry
	sink     report.Sink
	cfg      Config
	logger   hclog.Logger
}

// NewReader creates a reader. sink may be nil.
func NewReader(engine search.Engine, registry *search.Registry, sink report.Sink, cfg Config, logger hclog.Logger) *Reader {
	cfg.SetDefaults()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reader{
		engine:   engine,
		registry: registry,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.Named("listing"),
	}
}

// DefaultRows returns the configured page size for requests that omit one.
func (r *Reader) DefaultRows() int {
	return r.cfg.DefaultRows
}

// List returns a window of any core.
func (r *Reader) List(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*Page, error) {
	return r.list(ctx, core, "", rowStart, rowCount, createReport)
}

// ListGenomes returns a window of a genome feature core.
func (r *Reader) ListGenomes(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*Page, error) {
	return r.list(ctx, core, search.KindGenomeFeature, rowStart, rowCount, createReport)
}

// ListTaxa returns a window of a taxon core.
func (r *Reader) ListTaxa(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*Page, error) {
	return r.list(ctx, core, search.KindTaxon, rowStart, rowCount, createReport)
}

// ListLoadedTaxa returns a window of the taxa that carry a ws_ref, each
// paired with that reference. Total counts loaded taxa only.
func (r *Reader) ListLoadedTaxa(ctx context.Context, core string, rowStart, rowCount int, createReport bool) (*Page, error) {
	c, q, err := r.prepare(ctx, core, search.KindTaxon, rowStart, rowCount)
	if err != nil {
		return nil, err
	}
	q.RequireField = "ws_ref"

	res, err := r.engine.Query(ctx, c, q)
	if err != nil {
		return nil, err
	}

	page := &Page{Core: c.Name, RowStart: q.Offset, RowCount: q.Limit, Total: res.Total}
	for _, doc := range res.Docs {
		taxon, err := document.TaxonFromDocument(doc)
		if err != nil {
			key, _ := doc.Key(c.KeyField)
			r.logger.Warn("skipping unreadable taxon", "core", c.Name, "key", key, "error", err)
			continue
		}
		page.Taxa = append(page.Taxa, LoadedTaxon{Taxon: taxon, Ref: taxon.WSRef})
	}

	r.publish(ctx, page, len(page.Taxa), createReport)
	return page, nil
}

func (r *Reader) list(ctx context.Context, core string, kind search.Kind, rowStart, rowCount int, createReport bool) (*Page, error) {
	c, q, err := r.prepare(ctx, core, kind, rowStart, rowCount)
	if err != nil {
		return nil, err
	}

	res, err := r.engine.Query(ctx, c, q)
	if err != nil {
		return nil, err
	}

	page := &Page{Core: c.Name, RowStart: q.Offset, RowCount: q.Limit, Total: res.Total, Docs: res.Docs}
	r.publish(ctx, page, len(page.Docs), createReport)
	return page, nil
}

// prepare validates the window before touching the engine, then resolves
// the core.
func (r *Reader) prepare(ctx context.Context, core string, kind search.Kind, rowStart, rowCount int) (search.Core, search.Query, error) {
	if rowStart < 0 {
		return search.Core{}, search.Query{}, fmt.Errorf("%w: row_start must not be negative, got %d", ErrInvalidPageRequest, rowStart)
	}
	if rowCount <= 0 {
		return search.Core{}, search.Query{}, fmt.Errorf("%w: row_count must be positive, got %d", ErrInvalidPageRequest, rowCount)
	}
	if rowCount > r.cfg.MaxRows {
		r.logger.Debug("clamping row count", "requested", rowCount, "max", r.cfg.MaxRows)
		rowCount = r.cfg.MaxRows
	}

	c, err := search.Resolve(ctx, r.registry, r.engine, core)
	if err != nil {
		return search.Core{}, search.Query{}, err
	}
	if kind != "" && c.Kind != kind {
		return search.Core{}, search.Query{}, &search.Error{
			Op:  "List",
			Err: search.ErrWrongCoreKind,
			Msg: fmt.Sprintf("core %q holds %s documents, not %s", core, c.Kind, kind),
		}
	}
	return c, search.Query{Offset: rowStart, Limit: rowCount}, nil
}

func (r *Reader) publish(ctx context.Context, page *Page, returned int, createReport bool) {
	if !createReport {
		return
	}
	now := time.Now()
	page.ReportRef, page.ReportErr = report.Publish(ctx, r.sink, &report.Report{
		Kind:   report.KindListing,
		Core:   page.Core,
		Status: "completed",
		Listing: &report.Window{
			RowStart: page.RowStart,
			RowCount: page.RowCount,
			Returned: returned,
			Total:    page.Total,
		},
		StartedAt:  now,
		FinishedAt: now,
	}, r.cfg.ReportTimeout)
	if page.ReportErr != nil {
		r.logger.Warn("failed to publish listing report", "core", page.Core, "error", page.ReportErr)
	}
}
