// Package indexer synchronizes genome and taxon source objects into search
// cores: it resolves references, maps objects to documents, drops documents
// the core already holds and submits the rest.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/dedup"
	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/mapper"
	"github.com/kbase/kbsolrutil/pkg/report"
	"github.com/kbase/kbsolrutil/pkg/search"
	"github.com/kbase/kbsolrutil/pkg/source"
	"github.com/kbase/kbsolrutil/pkg/submit"
)

// DefaultMaxParallelFetches bounds concurrent object store reads.
const DefaultMaxParallelFetches = 8

// Orchestrator runs indexing jobs against one engine.
type Orchestrator struct {
	logger   hclog.Logger
	store    source.ObjectStore
	engine   search.Engine
	registry *search.Registry
	sink     report.Sink

	mapper    *mapper.Mapper
	dedup     *dedup.Deduplicator
	submitter *submit.Submitter

	dedupCfg  dedup.Config
	submitCfg submit.Config

	maxParallelFetches int
	fetchTimeout       time.Duration
	reportTimeout      time.Duration

	now func() time.Time
}

// Option is a functional option for creating an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithObjectStore sets the source object store.
func WithObjectStore(store source.ObjectStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithEngine sets the search engine.
func WithEngine(engine search.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithRegistry sets the core registry.
func WithRegistry(registry *search.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithReportSink sets where reports are published.
func WithReportSink(sink report.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithMaxParallelFetches sets the maximum concurrent source fetches.
func WithMaxParallelFetches(max int) Option {
	return func(o *Orchestrator) {
		o.maxParallelFetches = max
	}
}

// WithFetchTimeout bounds each source fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.fetchTimeout = d
	}
}

// WithReportTimeout bounds report publication.
func WithReportTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.reportTimeout = d
	}
}

// WithSubmitConfig sets batch submission settings.
func WithSubmitConfig(cfg submit.Config) Option {
	return func(o *Orchestrator) {
		o.submitCfg = cfg
	}
}

// WithDedupConfig sets lookup settings.
func WithDedupConfig(cfg dedup.Config) Option {
	return func(o *Orchestrator) {
		o.dedupCfg = cfg
	}
}

// NewOrchestrator creates a new indexing orchestrator.
func NewOrchestrator(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		maxParallelFetches: DefaultMaxParallelFetches,
		fetchTimeout:       time.Minute,
		reportTimeout:      30 * time.Second,
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if o.registry == nil {
		return nil, fmt.Errorf("core registry is required")
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}
	if o.maxParallelFetches <= 0 {
		o.maxParallelFetches = DefaultMaxParallelFetches
	}
	o.logger = o.logger.Named("indexer")

	o.mapper = mapper.New(o.logger)
	o.dedup = dedup.New(o.engine, o.dedupCfg, o.logger)
	o.submitter = submit.New(o.engine, o.submitCfg, o.logger)

	return o, nil
}

// RunResult is the outcome of an indexing call.
type RunResult struct {
	Summary *Summary

	// ReportRef is set when a report was requested and published.
	ReportRef string

	// ReportErr is set when a requested report could not be published. It
	// never fails the run.
	ReportErr error
}

// IndexGenomes indexes one document per feature of each referenced genome.
func (o *Orchestrator) IndexGenomes(ctx context.Context, coreName string, refs []string, createReport bool) (*RunResult, error) {
	core, err := o.resolveCore(ctx, coreName, search.KindGenomeFeature)
	if err != nil {
		return nil, err
	}
	return o.indexReferences(ctx, core, report.KindIndexGenomes, refs, createReport, func(ref source.Reference, obj *source.Object) ([]document.Document, error) {
		features, err := o.mapper.MapGenome(ref, obj)
		if err != nil {
			return nil, err
		}
		docs := make([]document.Document, len(features))
		for i, f := range features {
			docs[i] = f.Fields()
		}
		return docs, nil
	})
}

// IndexTaxa indexes one document per referenced taxon.
func (o *Orchestrator) IndexTaxa(ctx context.Context, coreName string, refs []string, createReport bool) (*RunResult, error) {
	core, err := o.resolveCore(ctx, coreName, search.KindTaxon)
	if err != nil {
		return nil, err
	}
	return o.indexReferences(ctx, core, report.KindIndexTaxa, refs, createReport, func(ref source.Reference, obj *source.Object) ([]document.Document, error) {
		taxon, err := o.mapper.MapTaxon(ref, obj)
		if err != nil {
			return nil, err
		}
		return []document.Document{taxon.Fields()}, nil
	})
}

// IndexRawDocuments deduplicates caller-supplied documents against any core
// and submits the new and changed ones without mapping them.
func (o *Orchestrator) IndexRawDocuments(ctx context.Context, coreName string, docs []document.Document, createReport bool) (*RunResult, error) {
	core, err := o.resolveCore(ctx, coreName, "")
	if err != nil {
		return nil, err
	}

	t := newTally(report.KindIndexDocs, core.Name, o.now())
	t.update(func(c *report.Counts) { c.Documents = len(docs) })

	candidates := make([]dedup.Candidate, len(docs))
	for i, doc := range docs {
		candidates[i] = dedup.Candidate{Doc: doc.Clone()}
	}

	t.transition(StatusDeduplicating)
	classified, err := o.dedup.Classify(ctx, core, candidates)
	if err != nil {
		t.update(func(c *report.Counts) { c.NotAttempted += len(candidates) })
		return o.finish(ctx, t, true, createReport), nil
	}
	byKey := o.record(t, classified, make([]*refState, len(candidates)))

	t.transition(StatusSubmitting)
	cancelled := o.submit(ctx, core, t, classified.Submit(), byKey)
	return o.finish(ctx, t, cancelled, createReport), nil
}

// resolveCore validates the core and, when kind is set, that it holds that
// kind of document.
func (o *Orchestrator) resolveCore(ctx context.Context, name string, kind search.Kind) (search.Core, error) {
	core, err := search.Resolve(ctx, o.registry, o.engine, name)
	if err != nil {
		o.logger.Error("cannot use core", "core", name, "error", err)
		return search.Core{}, err
	}
	if kind != "" && core.Kind != kind {
		return search.Core{}, &search.Error{
			Op:  "Resolve",
			Err: search.ErrWrongCoreKind,
			Msg: fmt.Sprintf("core %q holds %s documents, not %s", name, core.Kind, kind),
		}
	}
	return core, nil
}

type mapFunc func(source.Reference, *source.Object) ([]document.Document, error)

// refState tracks one reference through a run.
type refState struct {
	raw  string
	ref  source.Reference
	obj  *source.Object
	docs []document.Document

	done   bool // fetched and mapped
	failed bool
}

// owner ties a submitted key back to its reference.
type owner struct {
	state *refState
	new   bool
}

func (o *Orchestrator) indexReferences(ctx context.Context, core search.Core, kind report.Kind, raw []string, createReport bool, mapFn mapFunc) (*RunResult, error) {
	if o.store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	t := newTally(kind, core.Name, o.now())
	t.update(func(c *report.Counts) { c.References = len(raw) })
	o.logger.Info("starting indexing run", "kind", kind, "core", core.Name, "references", len(raw))

	states := make([]*refState, len(raw))
	var valid []*refState
	for i, r := range raw {
		st := &refState{raw: r}
		states[i] = st
		ref, err := source.ParseReference(r)
		if err != nil {
			st.failed = true
			o.refFailed(t, st, KindInvalidReference, err)
			continue
		}
		st.ref = ref
		valid = append(valid, st)
	}

	// Resolve.
	t.transition(StatusResolving)
	err := ParallelProcess(ctx, valid, func(ctx context.Context, _ int, st *refState) error {
		fctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()

		obj, err := o.store.Fetch(fctx, st.ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			st.failed = true
			switch {
			case errors.Is(err, source.ErrNotFound):
				o.refFailed(t, st, KindSourceNotFound, err)
			case errors.Is(err, source.ErrInvalidReference):
				o.refFailed(t, st, KindInvalidReference, err)
			default:
				o.refFailed(t, st, KindFetchFailed, err)
			}
			return nil
		}
		st.obj = obj
		return nil
	}, o.maxParallelFetches)
	if err != nil {
		return o.finishRefs(ctx, t, states, true, createReport), nil
	}

	// Map.
	t.transition(StatusMapping)
	err = ParallelProcess(ctx, valid, func(_ context.Context, _ int, st *refState) error {
		if st.obj == nil {
			return nil
		}
		docs, err := mapFn(st.ref, st.obj)
		if err != nil {
			st.failed = true
			o.refFailed(t, st, KindMalformedSource, err)
			return nil
		}
		st.docs = docs
		st.done = true
		return nil
	}, o.maxParallelFetches)
	if err != nil {
		return o.finishRefs(ctx, t, states, true, createReport), nil
	}

	var candidates []dedup.Candidate
	var owners []*refState
	for _, st := range states {
		for _, doc := range st.docs {
			candidates = append(candidates, dedup.Candidate{Ref: st.raw, Doc: doc})
			owners = append(owners, st)
		}
	}
	t.update(func(c *report.Counts) { c.Documents = len(candidates) })

	// Deduplicate.
	t.transition(StatusDeduplicating)
	classified, err := o.dedup.Classify(ctx, core, candidates)
	if err != nil {
		t.update(func(c *report.Counts) { c.NotAttempted += len(candidates) })
		for _, st := range states {
			st.done = false
		}
		return o.finishRefs(ctx, t, states, true, createReport), nil
	}

	byKey := o.record(t, classified, owners)

	// Submit.
	t.transition(StatusSubmitting)
	cancelled := o.submit(ctx, core, t, classified.Submit(), byKey)
	return o.finishRefs(ctx, t, states, cancelled, createReport), nil
}

// record counts the decisions that need no submission and returns the owners
// of the documents that do. refs[i] is the reference behind decision i, or
// nil for raw documents.
func (o *Orchestrator) record(t *tally, classified *dedup.Result, refs []*refState) map[string]*owner {
	byKey := make(map[string]*owner)
	for i, dec := range classified.Decisions {
		st := refs[i]
		switch dec.Status {
		case dedup.StatusUnchanged:
			t.update(func(c *report.Counts) { c.Unchanged++ })
		case dedup.StatusSuperseded:
			t.update(func(c *report.Counts) { c.Superseded++ })
		case dedup.StatusFailed:
			ref := ""
			if st != nil {
				st.failed = true
				ref = st.raw
			}
			kind := KindLookupFailed
			if errors.Is(dec.Err, search.ErrMissingKey) {
				kind = KindMissingKey
			}
			t.fail(ref, dec.Key, kind, dec.Err.Error())
			t.update(func(c *report.Counts) { c.Failed++ })
		case dedup.StatusNew, dedup.StatusChanged:
			byKey[dec.Key] = &owner{state: st, new: dec.Status == dedup.StatusNew}
		}
	}
	return byKey
}

// submit writes docs and records their outcomes. It reports whether
// submission was cut short by cancellation.
func (o *Orchestrator) submit(ctx context.Context, core search.Core, t *tally, docs []document.Document, owners map[string]*owner) bool {
	res := o.submitter.Submit(ctx, core, docs)

	for _, key := range res.Accepted {
		own := owners[key]
		t.update(func(c *report.Counts) {
			if own != nil && !own.new {
				c.Updated++
			} else {
				c.Created++
			}
		})
	}

	for _, f := range res.Failed {
		ref := ""
		if own := owners[f.Key]; own != nil && own.state != nil {
			own.state.failed = true
			ref = own.state.raw
		}
		t.fail(ref, f.Key, FailureKind(f.Kind), f.Reason)
		t.update(func(c *report.Counts) { c.Failed++ })
	}

	for _, key := range res.NotSubmitted {
		if own := owners[key]; own != nil && own.state != nil {
			own.state.done = false
		}
	}
	t.update(func(c *report.Counts) { c.NotAttempted += len(res.NotSubmitted) })

	return res.Cancelled
}

func (o *Orchestrator) refFailed(t *tally, st *refState, kind FailureKind, err error) {
	o.logger.Warn("reference failed", "reference", st.raw, "kind", kind, "error", err)
	t.fail(st.raw, "", kind, err.Error())
}

// finishRefs settles per-reference counts and finishes the run.
func (o *Orchestrator) finishRefs(ctx context.Context, t *tally, states []*refState, cancelled bool, createReport bool) *RunResult {
	succeeded, failed := 0, 0
	for _, st := range states {
		switch {
		case st.failed:
			failed++
		case st.done:
			succeeded++
		}
	}
	t.update(func(c *report.Counts) {
		c.ReferencesSucceeded = succeeded
		c.ReferencesFailed = failed
	})
	return o.finish(ctx, t, cancelled, createReport)
}

func (o *Orchestrator) finish(ctx context.Context, t *tally, cancelled bool, createReport bool) *RunResult {
	status := StatusCompleted
	if cancelled || ctx.Err() != nil {
		status = StatusCancelled
	}
	summary := t.finish(status, o.now())

	o.logger.Info("indexing run finished",
		"kind", summary.Kind,
		"core", summary.Core,
		"status", summary.Status,
		"documents", summary.Documents,
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)

	result := &RunResult{Summary: summary}
	if createReport {
		result.ReportRef, result.ReportErr = report.Publish(ctx, o.sink, summary.Report(), o.reportTimeout)
		if result.ReportErr != nil {
			o.logger.Warn("failed to publish report", "core", summary.Core, "error", result.ReportErr)
		}
	}
	return result
}
