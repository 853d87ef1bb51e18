// Package inmem provides an in-memory implementation of run.Store for tests
// and single-process deployments. The store holds Run entities in a map,
// keyed by run ID, with no persistence across process restarts.
package inmem

import (
	"context"
	"sync"

	"github.com/agentforge/runengine/run"
)

// Store implements run.Store in memory. All operations are thread-safe via
// sync.RWMutex. Entities are defensively copied on read and write to
// prevent accidental mutation of stored data by callers holding a pointer.
type Store struct {
	mu   sync.RWMutex
	runs map[string]run.Run
}

// New constructs an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]run.Run)}
}

// Create inserts a new Run, failing (by overwriting) is not attempted here;
// callers are expected to generate unique IDs upstream (RunEngine uses
// google/uuid). Create and Update share the same write path.
func (s *Store) Create(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = *r
	return nil
}

// Get retrieves the Run for the given ID.
func (s *Store) Get(_ context.Context, id string) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, run.ErrNotFound
	}
	cp := r
	return &cp, nil
}

// Update persists the current in-memory state of r.
func (s *Store) Update(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return run.ErrNotFound
	}
	s.runs[r.ID] = *r
	return nil
}

// ListBySession returns every Run sharing sessionID, oldest first by
// CreatedAt.
func (s *Store) ListBySession(_ context.Context, sessionID string) ([]*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*run.Run
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			cp := r
			out = append(out, &cp)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

// Reset clears all stored runs. Not part of run.Store; useful for test
// isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]run.Run)
}

func sortByCreatedAt(runs []*run.Run) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].Metadata.CreatedAt.Before(runs[j-1].Metadata.CreatedAt); j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}
