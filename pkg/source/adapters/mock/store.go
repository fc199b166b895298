// Package mock provides an in-memory object store for tests and dry runs.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbase/kbsolrutil/pkg/source"
)

var _ source.ObjectStore = (*Store)(nil)

// Store is a thread-safe in-memory object store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*source.Object
	errs    map[string]error
	fetches map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]*source.Object),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (s *Store) Name() string { return "mock" }

// Put stores an object body under ref.
func (s *Store) Put(ref string, info source.ObjectInfo, data map[string]any) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := source.ParseReference(ref)
	if err != nil {
		parsed = source.Reference{Raw: ref}
	}
	s.objects[ref] = &source.Object{Ref: parsed, Info: info, Data: data}
	return s
}

// FailWith makes every fetch of ref return err.
func (s *Store) FailWith(ref string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[ref] = err
	return s
}

// Fetches returns how many times ref was fetched.
func (s *Store) Fetches(ref string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches[ref]
}

// Fetch returns the stored object for ref.
func (s *Store) Fetch(ctx context.Context, ref source.Reference) (*source.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[ref.Raw]++

	if err, ok := s.errs[ref.Raw]; ok {
		return nil, err
	}
	obj, ok := s.objects[ref.Raw]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, ref.Raw)
	}
	return obj, nil
}
