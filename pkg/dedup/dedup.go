// Package dedup classifies candidate documents against what a core already
// holds so that unchanged documents are never resubmitted.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/retry"
	"github.com/kbase/kbsolrutil/pkg/search"
)

// ErrLookupFailed marks candidates whose stored counterparts could not be
// read.
var ErrLookupFailed = errors.New("existing document lookup failed")

// DefaultChunkSize is the number of keys per lookup request.
const DefaultChunkSize = 500

// Status is the classification of one candidate.
type Status int

const (
	StatusNew Status = iota
	StatusChanged
	StatusUnchanged
	StatusSuperseded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusChanged:
		return "changed"
	case StatusUnchanged:
		return "unchanged"
	case StatusSuperseded:
		return "superseded"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Candidate is a document proposed for submission. Ref names the source
// object it was mapped from and may be empty.
type Candidate struct {
	Ref string
	Doc document.Document
}

// Decision is the verdict for the candidate at the same position.
type Decision struct {
	Key    string
	Ref    string
	Status Status
	Err    error
}

// Result holds one decision per candidate, in candidate order.
type Result struct {
	Decisions []Decision

	candidates []Candidate
}

// Submit returns the documents classified New or Changed, in candidate order.
func (r *Result) Submit() []document.Document {
	var out []document.Document
	for i, d := range r.Decisions {
		if d.Status == StatusNew || d.Status == StatusChanged {
			out = append(out, r.candidates[i].Doc)
		}
	}
	return out
}

// Count returns the number of decisions with the given status.
func (r *Result) Count(s Status) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Status == s {
			n++
		}
	}
	return n
}

// Config contains deduplicator configuration.
type Config struct {
	ChunkSize int
	Retry     retry.Policy

	// CallTimeout bounds each lookup request. Zero means no timeout.
	CallTimeout time.Duration

	// IgnoreFields are engine bookkeeping fields excluded from comparison.
	IgnoreFields []string
}

// Deduplicator classifies candidates against an engine.
type Deduplicator struct {
	engine search.Engine
	cfg    Config
	logger hclog.Logger
}

// New creates a deduplicator.
func New(engine search.Engine, cfg Config, logger hclog.Logger) *Deduplicator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	cfg.Retry.SetDefaults()
	if cfg.IgnoreFields == nil {
		cfg.IgnoreFields = []string{"_version_", "kbsolr_fields"}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Deduplicator{
		engine: engine,
		cfg:    cfg,
		logger: logger.Named("dedup"),
	}
}

// Classify decides, for every candidate, whether it must be submitted.
// When a key occurs more than once the last occurrence is kept and earlier
// ones are Superseded. A lookup chunk that keeps failing marks its
// candidates Failed and classification continues. The only error returned is
// the context's.
func (d *Deduplicator) Classify(ctx context.Context, core search.Core, candidates []Candidate) (*Result, error) {
	res := &Result{
		Decisions:  make([]Decision, len(candidates)),
		candidates: candidates,
	}

	last := make(map[string]int, len(candidates))
	for i, c := range candidates {
		res.Decisions[i].Ref = c.Ref
		key, ok := c.Doc.Key(core.KeyField)
		if !ok {
			res.Decisions[i].Status = StatusFailed
			res.Decisions[i].Err = search.ErrMissingKey
			continue
		}
		res.Decisions[i].Key = key
		if prev, seen := last[key]; seen {
			res.Decisions[prev].Status = StatusSuperseded
		}
		last[key] = i
	}

	// Lookup order follows the surviving candidates' positions.
	var keys []string
	for i, dec := range res.Decisions {
		if dec.Key != "" && last[dec.Key] == i {
			keys = append(keys, dec.Key)
		}
	}

	for start := 0; start < len(keys); start += d.cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+d.cfg.ChunkSize, len(keys))
		chunk := keys[start:end]

		existing, err := retry.Do(ctx, d.cfg.Retry, func(ctx context.Context) (map[string]document.Document, error) {
			if d.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
				defer cancel()
			}
			return d.engine.FetchByKeys(ctx, core, chunk)
		}, func(attempt int, err error, wait time.Duration) {
			d.logger.Warn("retrying lookup", "core", core.Name, "keys", len(chunk), "attempt", attempt, "wait", wait, "error", err)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.logger.Error("lookup failed", "core", core.Name, "keys", len(chunk), "error", err)
			for _, key := range chunk {
				dec := &res.Decisions[last[key]]
				dec.Status = StatusFailed
				dec.Err = fmt.Errorf("%w: %w", ErrLookupFailed, err)
			}
			continue
		}

		for _, key := range chunk {
			i := last[key]
			stored, found := existing[key]
			switch {
			case !found:
				res.Decisions[i].Status = StatusNew
			case document.Equal(stored, candidates[i].Doc, d.cfg.IgnoreFields...):
				res.Decisions[i].Status = StatusUnchanged
			default:
				res.Decisions[i].Status = StatusChanged
			}
		}
	}

	d.logger.Debug("classified candidates",
		"core", core.Name,
		"candidates", len(candidates),
		"new", res.Count(StatusNew),
		"changed", res.Count(StatusChanged),
		"unchanged", res.Count(StatusUnchanged),
		"superseded", res.Count(StatusSuperseded),
		"failed", res.Count(StatusFailed),
	)
	return res, nil
}
