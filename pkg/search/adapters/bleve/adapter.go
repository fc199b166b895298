// Package bleve implements search.Engine on embedded Bleve indexes, one
// index per core. Documents are stored verbatim as internal values next to a
// minimal inverted index used for ordering and field-presence filters.
package bleve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var _ search.Engine = (*Adapter)(nil)

const (
	// presentField lists the names of a document's non-empty fields.
	presentField = "kbsolr_fields"

	internalPrefix = "doc:"
)

// Config contains Bleve configuration.
type Config struct {
	Path     string `hcl:"path,optional"`      // Base directory for on-disk indexes
	InMemory bool   `hcl:"in_memory,optional"` // Keep indexes in memory only
}

// Adapter implements search.Engine for Bleve.
type Adapter struct {
	mu      sync.RWMutex
	cfg     Config
	indexes map[string]bleve.Index
	logger  hclog.Logger
}

// NewAdapter opens or creates one index per core.
func NewAdapter(cfg *Config, cores []search.Core, logger hclog.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = &Config{InMemory: true}
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("bleve index path required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	a := &Adapter{
		cfg:     *cfg,
		indexes: make(map[string]bleve.Index, len(cores)),
		logger:  logger.Named("bleve"),
	}
	for _, c := range cores {
		if err := a.AddCore(c.Name); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// AddCore opens or creates the index backing a core.
func (a *Adapter) AddCore(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.indexes[name]; ok {
		return nil
	}

	var (
		idx bleve.Index
		err error
	)
	if a.cfg.InMemory {
		idx, err = bleve.NewMemOnly(coreMapping())
	} else {
		idx, err = openOrCreateIndex(filepath.Join(a.cfg.Path, name+".bleve"), coreMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to open index for core %q: %w", name, err)
	}

	a.indexes[name] = idx
	a.logger.Debug("opened core index", "core", name, "in_memory", a.cfg.InMemory)
	return nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// coreMapping indexes only the field-presence list. Everything else lives in
// the stored internal value.
func coreMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentStaticMapping()
	docMapping.AddFieldMappingsAt(presentField, bleve.NewKeywordFieldMapping())

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return "bleve"
}

// HasCore reports whether an index is open for the core.
func (a *Adapter) HasCore(_ context.Context, core string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.indexes[core]
	return ok, nil
}

func (a *Adapter) index(op, core string) (bleve.Index, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	idx, ok := a.indexes[core]
	if !ok {
		return nil, &search.Error{Op: op, Err: search.ErrUnknownCore, Msg: fmt.Sprintf("core %q", core)}
	}
	return idx, nil
}

// BulkUpsert writes documents in a single Bleve batch. Documents without a
// key are reported individually and left out of the batch.
func (a *Adapter) BulkUpsert(ctx context.Context, core search.Core, docs []document.Document) ([]search.Outcome, error) {
	idx, err := a.index("BulkUpsert", core.Name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]search.Outcome, len(docs))
	batch := idx.NewBatch()
	for i, doc := range docs {
		key, ok := doc.Key(core.KeyField)
		if !ok {
			outcomes[i] = search.Outcome{Err: search.ErrMissingKey}
			continue
		}
		outcomes[i].Key = key

		clean := doc.Clone()
		raw, err := json.Marshal(clean)
		if err != nil {
			outcomes[i].Err = &search.Error{Op: "BulkUpsert", Err: search.ErrRejected, Msg: err.Error()}
			continue
		}

		if err := batch.Index(key, map[string]any{presentField: clean.Fields()}); err != nil {
			outcomes[i].Err = &search.Error{Op: "BulkUpsert", Err: search.ErrRejected, Msg: err.Error()}
			continue
		}
		batch.SetInternal([]byte(internalPrefix+key), raw)
	}

	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return nil, &search.Error{Op: "BulkUpsert", Err: err, Msg: fmt.Sprintf("core %q", core.Name)}
		}
	}

	a.logger.Trace("upserted batch", "core", core.Name, "documents", len(docs))
	return outcomes, nil
}

// FetchByKeys reads stored documents by key.
func (a *Adapter) FetchByKeys(ctx context.Context, core search.Core, keys []string) (map[string]document.Document, error) {
	idx, err := a.index("FetchByKeys", core.Name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]document.Document, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := loadDocument(idx, key)
		if err != nil {
			return nil, &search.Error{Op: "FetchByKeys", Err: err, Msg: fmt.Sprintf("key %q", key)}
		}
		if doc != nil {
			out[key] = doc
		}
	}
	return out, nil
}

func loadDocument(idx bleve.Index, key string) (document.Document, error) {
	raw, err := idx.GetInternal([]byte(internalPrefix + key))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	// Numbers stay json.Number so that large integers survive exactly.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc document.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("corrupt stored document: %w", err)
	}
	return doc, nil
}

// Query returns a window of the core ordered by document key.
func (a *Adapter) Query(ctx context.Context, core search.Core, q search.Query) (*search.Page, error) {
	idx, err := a.index("Query", core.Name)
	if err != nil {
		return nil, err
	}

	var bq query.Query = bleve.NewMatchAllQuery()
	if q.RequireField != "" {
		tq := bleve.NewTermQuery(q.RequireField)
		tq.SetField(presentField)
		bq = tq
	}

	req := bleve.NewSearchRequestOptions(bq, q.Limit, q.Offset, false)
	req.SortBy([]string{"_id"})

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, &search.Error{Op: "Query", Err: err, Msg: fmt.Sprintf("core %q", core.Name)}
	}

	page := &search.Page{
		Docs:  make([]document.Document, 0, len(res.Hits)),
		Total: int(res.Total),
	}
	for _, hit := range res.Hits {
		doc, err := loadDocument(idx, hit.ID)
		if err != nil {
			return nil, &search.Error{Op: "Query", Err: err, Msg: fmt.Sprintf("key %q", hit.ID)}
		}
		if doc != nil {
			page.Docs = append(page.Docs, doc)
		}
	}
	return page, nil
}

// Close closes all indexes.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result error
	for name, idx := range a.indexes {
		if err := idx.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("core %q: %w", name, err))
		}
		delete(a.indexes, name)
	}
	return result
}
