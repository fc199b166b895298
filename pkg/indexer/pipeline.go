package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ParallelProcess calls fn for every item using at most maxWorkers
// goroutines. fn receives the item's position so that results can be stored
// without further locking. Items not yet started when ctx ends are skipped
// and ctx.Err() is returned; errors from fn are combined otherwise.
func ParallelProcess[T any](ctx context.Context, items []T, fn func(context.Context, int, T) error, maxWorkers int) error {
	if len(items) == 0 {
		return nil
	}

	workers := maxWorkers
	if workers <= 0 {
		workers = 1
	}
	if len(items) < workers {
		workers = len(items)
	}

	type job struct {
		index int
		item  T
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	ch := make(chan job)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := range ch {
				if err := fn(ctx, j.index, j.item); err != nil {
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("item %d: %w", j.index, err))
					mu.Unlock()
				}
			}
		}()
	}

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case ch <- job{index: i, item: item}:
		}
	}
	close(ch)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errs
}
