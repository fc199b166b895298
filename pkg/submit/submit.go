// Package submit writes documents to a search core in bounded batches with
// retry, rate limiting and cooperative cancellation.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/retry"
	"github.com/kbase/kbsolrutil/pkg/search"
)

const (
	DefaultBatchSize   = 500
	DefaultMaxInFlight = 4
	DefaultCallTimeout = 30 * time.Second
)

// FailureKind classifies a submission failure.
type FailureKind string

const (
	// KindRejected is a document the engine refused inside an accepted batch.
	KindRejected FailureKind = "rejected"

	// KindMissingKey is a document without its core's key field.
	KindMissingKey FailureKind = "missing_key"

	// KindSubmitFailed is a document whose whole batch failed.
	KindSubmitFailed FailureKind = "submit_failed"
)

// Failure is one document that was not written.
type Failure struct {
	Key    string
	Reason string
	Kind   FailureKind
}

// Result accounts for every submitted document exactly once, in input order
// within each list.
type Result struct {
	Accepted     []string
	Failed       []Failure
	NotSubmitted []string
	Cancelled    bool
}

// Config contains submitter configuration.
type Config struct {
	BatchSize   int
	MaxInFlight int
	CallTimeout time.Duration

	// RequestsPerSecond limits engine calls. Zero means unlimited.
	RequestsPerSecond float64

	Retry retry.Policy
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	c.Retry.SetDefaults()
}

// Submitter writes documents to an engine.
type Submitter struct {
	engine  search.Engine
	cfg     Config
	limiter *rate.Limiter
	logger  hclog.Logger
}

// New creates a submitter.
func New(engine search.Engine, cfg Config, logger hclog.Logger) *Submitter {
	cfg.SetDefaults()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Submitter{
		engine: engine,
		cfg:    cfg,
		logger: logger.Named("submitter"),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

type batch struct {
	index int
	docs  []document.Document
	res   Result
}

// Submit writes docs in batches. Cancellation of ctx stops dispatching new
// batches; batches already dispatched run to completion and their documents
// are accounted for normally.
func (s *Submitter) Submit(ctx context.Context, core search.Core, docs []document.Document) *Result {
	var batches []*batch
	for start := 0; start < len(docs); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(docs))
		batches = append(batches, &batch{index: len(batches), docs: docs[start:end]})
	}

	detached := context.WithoutCancel(ctx)
	freed := make(chan struct{}, len(batches))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxInFlight)

	result := &Result{}
	dispatched := 0

dispatch:
	for _, b := range batches {
		run := func() error {
			defer func() { freed <- struct{}{} }()
			s.runBatch(detached, core, b)
			return nil
		}
		for {
			if ctx.Err() != nil {
				break dispatch
			}
			if g.TryGo(run) {
				dispatched++
				break
			}
			select {
			case <-ctx.Done():
			case <-freed:
			}
		}
	}
	_ = g.Wait()

	for _, b := range batches[:dispatched] {
		result.Accepted = append(result.Accepted, b.res.Accepted...)
		result.Failed = append(result.Failed, b.res.Failed...)
	}
	if dispatched < len(batches) {
		result.Cancelled = true
		for _, b := range batches[dispatched:] {
			for _, doc := range b.docs {
				key, _ := doc.Key(core.KeyField)
				result.NotSubmitted = append(result.NotSubmitted, key)
			}
		}
		s.logger.Info("submission cancelled",
			"core", core.Name,
			"batches_dispatched", dispatched,
			"documents_not_submitted", len(result.NotSubmitted),
		)
	}

	s.logger.Debug("submission finished",
		"core", core.Name,
		"batches", len(batches),
		"accepted", len(result.Accepted),
		"failed", len(result.Failed),
	)
	return result
}

func (s *Submitter) runBatch(ctx context.Context, core search.Core, b *batch) {
	outcomes, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]search.Outcome, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return s.engine.BulkUpsert(callCtx, core, b.docs)
	}, func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("retrying batch",
			"core", core.Name,
			"batch", b.index,
			"documents", len(b.docs),
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err == nil && len(outcomes) != len(b.docs) {
		err = &search.Error{
			Op:  "BulkUpsert",
			Err: search.ErrRejected,
			Msg: fmt.Sprintf("engine returned %d outcomes for %d documents", len(outcomes), len(b.docs)),
		}
	}

	if err != nil {
		s.logger.Error("batch failed", "core", core.Name, "batch", b.index, "documents", len(b.docs), "error", err)
		for _, doc := range b.docs {
			key, _ := doc.Key(core.KeyField)
			b.res.Failed = append(b.res.Failed, Failure{Key: key, Reason: err.Error(), Kind: KindSubmitFailed})
		}
		return
	}

	for i, o := range outcomes {
		switch {
		case o.Err == nil:
			b.res.Accepted = append(b.res.Accepted, o.Key)
		case errors.Is(o.Err, search.ErrMissingKey):
			b.res.Failed = append(b.res.Failed, Failure{Reason: o.Err.Error(), Kind: KindMissingKey})
		default:
			key := o.Key
			if key == "" {
				key, _ = b.docs[i].Key(core.KeyField)
			}
			b.res.Failed = append(b.res.Failed, Failure{Key: key, Reason: o.Err.Error(), Kind: KindRejected})
		}
	}
}
