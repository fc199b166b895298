// Package report publishes indexing and listing reports to durable sinks and
// hands back a reference the caller can return to its client.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ErrNoSink is returned when a report is requested but no sink is
// configured.
var ErrNoSink = errors.New("no report sink configured")

// Kind identifies what produced a report.
type Kind string

const (
	KindIndexGenomes Kind = "index_genomes"
	KindIndexTaxa    Kind = "index_taxa"
	KindIndexDocs    Kind = "index_docs"
	KindListing      Kind = "listing"
)

// Counts tallies the outcome of a run.
type Counts struct {
	References          int `json:"references"`
	ReferencesSucceeded int `json:"references_succeeded"`
	ReferencesFailed    int `json:"references_failed"`

	Documents    int `json:"documents"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	Superseded   int `json:"superseded"`
	Failed       int `json:"failed"`
	NotAttempted int `json:"not_attempted"`
}

// Failure describes one failed reference or document.
type Failure struct {
	Reference string `json:"reference,omitempty"`
	Key       string `json:"key,omitempty"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// Window describes the page served by a listing request.
type Window struct {
	RowStart int `json:"row_start"`
	RowCount int `json:"row_count"`
	Returned int `json:"returned"`
	Total    int `json:"total"`
}

// Report is the published record of a run or listing.
type Report struct {
	Kind       Kind      `json:"kind"`
	Core       string    `json:"core"`
	Status     string    `json:"status"`
	Counts     Counts    `json:"counts"`
	Failures   []Failure `json:"failures,omitempty"`
	Listing    *Window   `json:"listing,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Sink stores a report and returns its reference.
type Sink interface {
	Publish(ctx context.Context, r *Report) (string, error)
}

// MultiSink publishes to every sink in order. The reference of the first
// sink that succeeds is returned together with the combined errors of the
// others.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, r *Report) (string, error) {
	if len(m) == 0 {
		return "", ErrNoSink
	}

	var (
		ref    string
		result error
	)
	for _, s := range m {
		got, err := s.Publish(ctx, r)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if ref == "" {
			ref = got
		}
	}
	return ref, result
}

// Publish sends r to sink, bounded by timeout and detached from the caller's
// cancellation so that an interrupted run can still leave a record. A nil
// sink yields ErrNoSink.
func Publish(ctx context.Context, sink Sink, r *Report, timeout time.Duration) (string, error) {
	if sink == nil {
		return "", ErrNoSink
	}
	pctx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, timeout)
		defer cancel()
	}
	return sink.Publish(pctx, r)
}
