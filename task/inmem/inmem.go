// Package inmem provides an in-memory implementation of task.Store, keyed
// by (runID, taskID), preserving insertion order per run for
// RunRecovery.findLastIncompleteTask.
package inmem

import (
	"context"
	"sync"

	"github.com/agentforge/runengine/task"
)

// Store implements task.Store in memory with insertion-order tracking.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]map[string]task.Task
	order map[string][]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		tasks: make(map[string]map[string]task.Task),
		order: make(map[string][]string),
	}
}

// Create inserts a new Task, recording its position in the run's insertion
// order.
func (s *Store) Create(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRun, ok := s.tasks[t.RunID]
	if !ok {
		byRun = make(map[string]task.Task)
		s.tasks[t.RunID] = byRun
	}
	if _, exists := byRun[t.ID]; !exists {
		s.order[t.RunID] = append(s.order[t.RunID], t.ID)
	}
	byRun[t.ID] = *t
	return nil
}

// Get retrieves a Task by (runID, taskID).
func (s *Store) Get(_ context.Context, runID, taskID string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRun, ok := s.tasks[runID]
	if !ok {
		return nil, task.ErrNotFound
	}
	t, ok := byRun[taskID]
	if !ok {
		return nil, task.ErrNotFound
	}
	cp := t
	return &cp, nil
}

// Update persists the current in-memory state of t.
func (s *Store) Update(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRun, ok := s.tasks[t.RunID]
	if !ok {
		return task.ErrNotFound
	}
	if _, ok := byRun[t.ID]; !ok {
		return task.ErrNotFound
	}
	byRun[t.ID] = *t
	return nil
}

// ListByRun returns every Task for runID in insertion order.
func (s *Store) ListByRun(_ context.Context, runID string) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRun, ok := s.tasks[runID]
	if !ok {
		return nil, nil
	}
	out := make([]*task.Task, 0, len(byRun))
	for _, id := range s.order[runID] {
		t := byRun[id]
		cp := t
		out = append(out, &cp)
	}
	return out, nil
}

// Reset clears all stored tasks. Not part of task.Store; useful for test
// isolation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]map[string]task.Task)
	s.order = make(map[string][]string)
}
