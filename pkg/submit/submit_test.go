package submit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/kbsolrutil/pkg/document"
	"github.com/kbase/kbsolrutil/pkg/retry"
	"github.com/kbase/kbsolrutil/pkg/search"
)

var taxa = search.Core{Name: "taxonomy_ci", Kind: search.KindTaxon, KeyField: "taxonomy_id"}

// fakeEngine records upserts and injects failures.
type fakeEngine struct {
	search.Engine

	mu        sync.Mutex
	calls     int
	transient int                 // fail this many calls with a transient error
	failBatch func([]string) bool // fail every attempt of matching batches
	reject    map[string]bool     // per-document rejections
	slow      time.Duration       // first call blocks this long
	onCall    func(call int)
	batches   [][]string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeEngine) BulkUpsert(ctx context.Context, core search.Core, docs []document.Document) ([]search.Outcome, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i], _ = d.Key(core.KeyField)
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batches = append(f.batches, keys)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(call)
	}
	if call == 1 && f.slow > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.slow):
		}
	}
	if call <= f.transient {
		return nil, &search.Error{Op: "BulkUpsert", Err: search.ErrTransient, Msg: "status 503"}
	}
	if f.failBatch != nil && f.failBatch(keys) {
		return nil, &search.Error{Op: "BulkUpsert", Err: search.ErrTransient, Msg: "status 502"}
	}
	time.Sleep(2 * time.Millisecond)

	outcomes := make([]search.Outcome, len(docs))
	for i, k := range keys {
		outcomes[i].Key = k
		switch {
		case k == "":
			outcomes[i].Err = search.ErrMissingKey
		case f.reject[k]:
			outcomes[i].Err = &search.Error{Op: "BulkUpsert", Err: search.ErrRejected, Msg: "bad field"}
		}
	}
	return outcomes, nil
}

func taxonDocs(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = document.Document{"taxonomy_id": int64(i + 1)}
	}
	return docs
}

func keys(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprint(i))
	}
	return out
}

func fastConfig() Config {
	return Config{
		BatchSize:   3,
		MaxInFlight: 2,
		CallTimeout: time.Second,
		Retry: retry.Policy{
			InitialInterval: time.Millisecond,
			Multiplier:      2,
			MaxInterval:     4 * time.Millisecond,
			MaxAttempts:     3,
		},
	}
}

func TestSubmitBatchesInOrder(t *testing.T) {
	engine := &fakeEngine{}
	res := New(engine, fastConfig(), nil).Submit(context.Background(), taxa, taxonDocs(8))

	assert.Equal(t, keys(1, 8), res.Accepted)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 3, engine.calls)
	assert.LessOrEqual(t, engine.maxInFlight.Load(), int32(2))
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	engine := &fakeEngine{transient: 2}
	cfg := fastConfig()
	cfg.BatchSize = 10
	res := New(engine, cfg, nil).Submit(context.Background(), taxa, taxonDocs(4))

	assert.Equal(t, keys(1, 4), res.Accepted)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 3, engine.calls)
}

func TestSubmitExhaustedBatchFailsAndOthersContinue(t *testing.T) {
	engine := &fakeEngine{failBatch: func(k []string) bool { return k[0] == "4" }}
	res := New(engine, fastConfig(), nil).Submit(context.Background(), taxa, taxonDocs(9))

	assert.Equal(t, append(keys(1, 3), keys(7, 9)...), res.Accepted)
	require.Len(t, res.Failed, 3)
	for i, f := range res.Failed {
		assert.Equal(t, fmt.Sprint(i+4), f.Key)
		assert.Equal(t, KindSubmitFailed, f.Kind)
		assert.Contains(t, f.Reason, "gave up after 3 attempts")
	}
}

func TestSubmitPerDocumentRejections(t *testing.T) {
	engine := &fakeEngine{reject: map[string]bool{"2": true}}
	docs := taxonDocs(3)
	docs = append(docs, document.Document{"scientific_name": "no key"})

	cfg := fastConfig()
	cfg.BatchSize = 10
	res := New(engine, cfg, nil).Submit(context.Background(), taxa, docs)

	assert.Equal(t, []string{"1", "3"}, res.Accepted)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, Failure{Key: "2", Reason: res.Failed[0].Reason, Kind: KindRejected}, res.Failed[0])
	assert.Contains(t, res.Failed[0].Reason, "bad field")
	assert.Equal(t, KindMissingKey, res.Failed[1].Kind)
}

func TestSubmitCallTimeoutIsRetried(t *testing.T) {
	engine := &fakeEngine{slow: time.Second}
	cfg := fastConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.BatchSize = 10

	res := New(engine, cfg, nil).Submit(context.Background(), taxa, taxonDocs(2))
	assert.Equal(t, keys(1, 2), res.Accepted)
	assert.Equal(t, 2, engine.calls)
}

func TestSubmitCancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &fakeEngine{onCall: func(call int) {
		if call == 1 {
			cancel()
		}
	}}
	cfg := fastConfig()
	cfg.MaxInFlight = 1

	res := New(engine, cfg, nil).Submit(ctx, taxa, taxonDocs(7))

	assert.True(t, res.Cancelled)
	assert.Equal(t, keys(1, 3), res.Accepted)
	assert.Equal(t, keys(4, 7), res.NotSubmitted)
	assert.Equal(t, 1, engine.calls)
}

func TestSubmitAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{}
	res := New(engine, fastConfig(), nil).Submit(ctx, taxa, taxonDocs(2))
	assert.True(t, res.Cancelled)
	assert.Equal(t, keys(1, 2), res.NotSubmitted)
	assert.Equal(t, 0, engine.calls)
}

func TestSubmitRateLimit(t *testing.T) {
	engine := &fakeEngine{}
	cfg := fastConfig()
	cfg.BatchSize = 1
	cfg.RequestsPerSecond = 50

	start := time.Now()
	res := New(engine, cfg, nil).Submit(context.Background(), taxa, taxonDocs(4))
	assert.Len(t, res.Accepted, 4)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
