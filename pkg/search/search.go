// Package search defines the search engine collaborator: named cores holding
// flat documents, batched upserts, bulk key lookups and ordered pagination.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kbase/kbsolrutil/pkg/document"
)

// Kind is the type of document a core holds.
type Kind string

const (
	KindGenomeFeature Kind = "genome"
	KindTaxon         Kind = "taxon"
	KindRaw           Kind = "raw"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGenomeFeature, KindTaxon, KindRaw:
		return k, nil
	}
	return "", fmt.Errorf("invalid core kind %q (must be one of: genome, taxon, raw)", s)
}

// DefaultKeyField returns the key field conventionally used by a kind.
func (k Kind) DefaultKeyField() string {
	switch k {
	case KindGenomeFeature:
		return document.GenomeFeatureKeyField
	case KindTaxon:
		return document.TaxonKeyField
	}
	return "id"
}

// Core describes a named document collection.
type Core struct {
	Name     string
	Kind     Kind
	KeyField string
}

// Outcome is the engine's verdict on one document of a BulkUpsert. Err is
// nil when the document was accepted.
type Outcome struct {
	Key string
	Err error
}

// Query selects a window of a core ordered by the key field ascending.
type Query struct {
	Offset int
	Limit  int

	// RequireField restricts results to documents that carry the field.
	RequireField string
}

// Page is one window of query results.
type Page struct {
	Docs  []document.Document
	Total int
}

// Engine is a search engine hosting one or more cores.
type Engine interface {
	// Name returns the engine implementation name.
	Name() string

	// HasCore reports whether the engine hosts the named core.
	HasCore(ctx context.Context, core string) (bool, error)

	// BulkUpsert writes documents, overwriting any with the same key. A
	// returned error means the whole request failed; per-document failures
	// are reported in the outcomes.
	BulkUpsert(ctx context.Context, core Core, docs []document.Document) ([]Outcome, error)

	// FetchByKeys returns the stored documents for the given keys. Keys with
	// no stored document are absent from the result.
	FetchByKeys(ctx context.Context, core Core, keys []string) (map[string]document.Document, error)

	// Query returns a window of documents ordered by key.
	Query(ctx context.Context, core Core, q Query) (*Page, error)

	// Close releases engine resources.
	Close() error
}

// Registry holds the configured cores.
type Registry struct {
	mu    sync.RWMutex
	cores map[string]Core
}

// NewRegistry creates a registry from core definitions. An empty key field
// defaults to the kind's conventional key.
func NewRegistry(cores ...Core) (*Registry, error) {
	r := &Registry{cores: make(map[string]Core, len(cores))}
	for _, c := range cores {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a core definition.
func (r *Registry) Register(c Core) error {
	if c.Name == "" {
		return fmt.Errorf("core name is required")
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return fmt.Errorf("core %q: %w", c.Name, err)
	}
	if c.KeyField == "" {
		c.KeyField = c.Kind.DefaultKeyField()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cores[c.Name] = c
	return nil
}

// Lookup returns the named core or an error wrapping ErrUnknownCore.
func (r *Registry) Lookup(name string) (Core, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cores[name]
	if !ok {
		return Core{}, &Error{Op: "Lookup", Err: ErrUnknownCore, Msg: fmt.Sprintf("core %q", name)}
	}
	return c, nil
}

// Cores returns all registered cores sorted by name.
func (r *Registry) Cores() []Core {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Core, 0, len(r.cores))
	for _, c := range r.cores {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve looks up the named core and confirms the engine hosts it.
func Resolve(ctx context.Context, reg *Registry, engine Engine, name string) (Core, error) {
	core, err := reg.Lookup(name)
	if err != nil {
		return Core{}, err
	}

	ok, err := engine.HasCore(ctx, name)
	if err != nil {
		return Core{}, &Error{Op: "HasCore", Err: err, Msg: fmt.Sprintf("core %q", name)}
	}
	if !ok {
		return Core{}, &Error{Op: "HasCore", Err: ErrUnknownCore, Msg: fmt.Sprintf("core %q is not hosted by %s", name, engine.Name())}
	}
	return core, nil
}
