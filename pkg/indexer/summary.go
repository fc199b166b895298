package indexer

import (
	"sync"
	"time"

	"github.com/kbase/kbsolrutil/pkg/report"
)

// Status is the state of an indexing run.
type Status string

const (
	StatusPending       Status = "pending"
	StatusResolving     Status = "resolving"
	StatusMapping       Status = "mapping"
	StatusDeduplicating Status = "deduplicating"
	StatusSubmitting    Status = "submitting"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusFailed        Status = "failed"
)

// FailureKind classifies a failed reference or document.
type FailureKind string

const (
	KindSourceNotFound   FailureKind = "source_not_found"
	KindInvalidReference FailureKind = "invalid_reference"
	KindFetchFailed      FailureKind = "fetch_failed"
	KindMalformedSource  FailureKind = "malformed_source"
	KindLookupFailed     FailureKind = "lookup_failed"
	KindRejected         FailureKind = "rejected"
	KindMissingKey       FailureKind = "missing_key"
	KindSubmitFailed     FailureKind = "submit_failed"
)

// Failure describes one failed reference or document.
type Failure = report.Failure

// Summary is the outcome of a run. Every mapped document is counted in
// exactly one of Created, Updated, Unchanged, Superseded, Failed and
// NotAttempted.
type Summary struct {
	Kind   report.Kind `json:"kind"`
	Core   string      `json:"core"`
	Status Status      `json:"status"`

	report.Counts

	Failures   []Failure `json:"failures,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Report converts the summary to a publishable report.
func (s *Summary) Report() *report.Report {
	return &report.Report{
		Kind:       s.Kind,
		Core:       s.Core,
		Status:     string(s.Status),
		Counts:     s.Counts,
		Failures:   s.Failures,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

// tally accumulates a Summary from concurrent workers.
type tally struct {
	mu sync.Mutex
	s  Summary
}

func newTally(kind report.Kind, core string, now time.Time) *tally {
	return &tally{s: Summary{
		Kind:      kind,
		Core:      core,
		Status:    StatusPending,
		StartedAt: now,
	}}
}

func (t *tally) transition(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Status = s
}

func (t *tally) fail(ref, key string, kind FailureKind, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Failures = append(t.s.Failures, Failure{
		Reference: ref,
		Key:       key,
		Kind:      string(kind),
		Reason:    reason,
	})
}

func (t *tally) update(fn func(c *report.Counts)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.s.Counts)
}

func (t *tally) finish(status Status, now time.Time) *Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Status = status
	t.s.FinishedAt = now
	out := t.s
	out.Failures = append([]Failure(nil), t.s.Failures...)
	return &out
}
