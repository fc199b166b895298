// Package cache decorates a search.Engine with a read-through cache for
// paginated queries. Writes to a core invalidate that core's cached pages.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var _ search.Engine = (*Engine)(nil)

// Store is a byte-oriented key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)

	// InvalidatePrefix removes every key beginning with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Engine caches Query results of the wrapped engine.
type Engine struct {
	search.Engine

	store  Store
	logger hclog.Logger
}

// New wraps engine with a query cache backed by store.
func New(engine search.Engine, store Store, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		Engine: engine,
		store:  store,
		logger: logger.Named("query-cache"),
	}
}

// Query serves a page from the cache when present and populates it otherwise.
func (e *Engine) Query(ctx context.Context, core search.Core, q search.Query) (*search.Page, error) {
	key := pageKey(core, q)
	if raw, ok := e.store.Get(ctx, key); ok {
		var page search.Page
		if err := json.Unmarshal(raw, &page); err == nil {
			e.logger.Trace("cache hit", "core", core.Name, "offset", q.Offset, "limit", q.Limit)
			return &page, nil
		}
		e.logger.Warn("discarding unreadable cached page", "key", key)
	}

	page, err := e.Engine.Query(ctx, core, q)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(page); err == nil {
		e.store.Set(ctx, key, raw)
	}
	return page, nil
}

// BulkUpsert writes through to the wrapped engine and drops the core's cached
// pages, even when the write failed part way.
func (e *Engine) BulkUpsert(ctx context.Context, core search.Core, docs []document.Document) ([]search.Outcome, error) {
	outcomes, err := e.Engine.BulkUpsert(ctx, core, docs)

	if ierr := e.store.InvalidatePrefix(context.WithoutCancel(ctx), corePrefix(core)); ierr != nil {
		e.logger.Warn("failed to invalidate cached pages", "core", core.Name, "error", ierr)
	}
	return outcomes, err
}

func corePrefix(core search.Core) string {
	return core.Name + ":"
}

func pageKey(core search.Core, q search.Query) string {
	raw := fmt.Sprintf("%s|%d|%d|%s", core.KeyField, q.Offset, q.Limit, q.RequireField)
	hash := sha256.Sum256([]byte(raw))
	return corePrefix(core) + fmt.Sprintf("%x", hash[:12])
}
