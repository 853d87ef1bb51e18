// Package host implements RuntimeHost: the single-owner per-run critical
// section that serialises concurrent mutations for a given run, per
// spec.md §4.13 and §5.
package host

import (
	"context"
	"sync"

	"github.com/agentforge/runengine/orchestrator"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/store/kv"
)

// reentrancyKey marks a context as already holding the exclusive section
// for a given runID, so a re-entrant runExclusive call (e.g. recovery
// invoked from within an already-locked execute) is a no-op rather than a
// deadlock.
type reentrancyKey struct{ runID string }

// Host owns the KV store handle and serialises concurrent Execute calls
// for the same run via a per-run mutex chain (executionQueue). It is the
// only component permitted to mutate Run/Task entities directly; all other
// code receives entity snapshots or goes through the host.
type Host struct {
	Store  kv.Store
	Engine *orchestrator.Engine

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Host wrapping store and engine.
func New(store kv.Store, engine *orchestrator.Engine) *Host {
	return &Host{Store: store, Engine: engine, locks: make(map[string]*sync.Mutex)}
}

// RunExclusive chains fn onto the per-runID execution queue: the next
// closure for runID starts only after the previous one resolves. Nested
// acquisition for the same runID (detected via context) is a no-op.
func (h *Host) RunExclusive(ctx context.Context, runID string, fn func(ctx context.Context) error) error {
	if held, ok := ctx.Value(reentrancyKey{runID: runID}).(bool); ok && held {
		return fn(ctx)
	}

	lock := h.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithValue(ctx, reentrancyKey{runID: runID}, true)
	return fn(ctx)
}

func (h *Host) lockFor(runID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[runID] = lock
	}
	return lock
}

// Execute runs input through the Engine under runID's exclusive section.
func (h *Host) Execute(ctx context.Context, runID string, input run.Input) (*run.Run, error) {
	var result *run.Run
	err := h.RunExclusive(ctx, runID, func(ctx context.Context) error {
		r, err := h.Engine.Execute(ctx, runID, input)
		result = r
		return err
	})
	return result, err
}

// Cancel cancels runID's run under its exclusive section.
func (h *Host) Cancel(ctx context.Context, runID, reason string) error {
	return h.RunExclusive(ctx, runID, func(ctx context.Context) error {
		return h.Engine.Cancel(ctx, runID, reason)
	})
}
