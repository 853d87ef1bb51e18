// Package scheduler implements the TaskScheduler: ready-set discovery,
// bounded-concurrency batch execution, cascaded-failure propagation, and
// deadlock detection, per spec.md §4.4.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/resolver"
	"github.com/agentforge/runengine/retry"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/taskstate"
	"github.com/agentforge/runengine/telemetry"
)

// Executor runs a single task to completion, returning its output or an
// error. Implementations dispatch to an Agent's executeTask per spec.md
// §4.8; the scheduler itself is agent-agnostic.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) (task.Output, error)
}

// Scheduler drives one run's task graph to completion or deadlock-failure.
// ConcurrencyLimit bounds how many ready tasks run in parallel within a
// batch (default 1, i.e. sequential).
type Scheduler struct {
	Store            task.Store
	Executor         Executor
	RetryPolicy      retry.Policy
	ConcurrencyLimit int
	Logger           telemetry.Logger
	// Sleep pauses runOne's goroutine for the backoff delay before a retry
	// re-invokes the Executor. It takes ctx so a cancelled/cancelled-while-
	// sleeping run doesn't block shutdown, and is swappable in tests so
	// retry tests don't have to wait out real backoff delays.
	Sleep func(ctx context.Context, d time.Duration)
}

// New constructs a Scheduler with sane defaults: sequential execution and
// the package-default retry policy.
func New(store task.Store, executor Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		Store:            store,
		Executor:         executor,
		RetryPolicy:      retry.Default(),
		ConcurrencyLimit: 1,
		Logger:           telemetry.NewNoopLogger(),
		Sleep:            contextSleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ConcurrencyLimit < 1 {
		s.ConcurrencyLimit = 1
	}
	return s
}

// contextSleep is the default Sleep implementation: a real timer that
// returns early if ctx is done.
func contextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithConcurrencyLimit sets the batch parallelism (clamped to >=1 by New).
func WithConcurrencyLimit(n int) Option { return func(s *Scheduler) { s.ConcurrencyLimit = n } }

// WithRetryPolicy overrides the default retry.Policy.
func WithRetryPolicy(p retry.Policy) Option { return func(s *Scheduler) { s.RetryPolicy = p } }

// WithLogger attaches a telemetry.Logger.
func WithLogger(l telemetry.Logger) Option { return func(s *Scheduler) { s.Logger = l } }

// WithSleep overrides the backoff delay function, mainly so tests can
// replace real waiting with an instant (or recorded) stand-in.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(s *Scheduler) { s.Sleep = fn }
}

// Execute drives runID's task graph to completion. It loops: compute the
// ready set, fail on deadlock, execute a bounded-concurrency batch, repeat,
// until no non-terminal tasks remain.
func (s *Scheduler) Execute(ctx context.Context, runID string) error {
	for {
		tasks, err := s.Store.ListByRun(ctx, runID)
		if err != nil {
			return err
		}
		if allTerminal(tasks) {
			return nil
		}

		ready, err := s.computeReadySet(ctx, tasks)
		if err != nil {
			return err
		}
		if len(ready) == 0 {
			return enginerr.New(enginerr.KindScheduler, "dependency deadlock")
		}

		batch := ready
		if len(batch) > s.ConcurrencyLimit {
			batch = batch[:s.ConcurrencyLimit]
		}
		s.runBatch(ctx, batch)
	}
}

// ExecuteSingle runs exactly one task by ID without re-scanning the whole
// graph.
func (s *Scheduler) ExecuteSingle(ctx context.Context, runID, taskID string) error {
	t, err := s.Store.Get(ctx, runID, taskID)
	if err != nil {
		return err
	}
	s.runBatch(ctx, []*task.Task{t})
	return nil
}

// computeReadySet scans tasks for anything executable right now:
// tasks already READY, plus PENDING tasks whose dependencies are all DONE.
// Along the way it persists cascaded-failure and READY transitions so
// later scans observe a consistent graph (spec.md §4.4 "Cascaded failure").
func (s *Scheduler) computeReadySet(ctx context.Context, tasks []*task.Task) ([]*task.Task, error) {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var ready []*task.Task
	for _, t := range tasks {
		switch t.Status {
		case taskstate.Ready:
			ready = append(ready, t)
		case taskstate.Pending:
			failedDep, missing, err := cascadeCheck(t, byID)
			if err != nil {
				return nil, err
			}
			if missing != "" {
				return nil, enginerr.New(enginerr.KindScheduler, "Missing dependencies")
			}
			if failedDep != "" {
				t.Err = task.Error{Message: fmt.Sprintf("Dependency task %s failed", failedDep)}
				if terr := t.Transition(taskstate.Failed); terr != nil {
					return nil, terr
				}
				if err := s.Store.Update(ctx, t); err != nil {
					return nil, err
				}
				continue
			}
			if resolver.AreMet(ctx, t.Dependencies, tasks) {
				if err := t.Transition(taskstate.Ready); err != nil {
					return nil, err
				}
				if err := s.Store.Update(ctx, t); err != nil {
					return nil, err
				}
				ready = append(ready, t)
			}
		}
	}
	return ready, nil
}

// cascadeCheck reports a failed dependency ID (if any sibling dependency of
// t is FAILED) or a non-empty missing marker if a dependency ID does not
// resolve among siblings.
func cascadeCheck(t *task.Task, byID map[string]*task.Task) (failedDep string, missing string, err error) {
	for _, dep := range t.Dependencies {
		sib, ok := byID[dep]
		if !ok {
			return "", dep, nil
		}
		if sib.Status == taskstate.Failed {
			return dep, "", nil
		}
	}
	return "", "", nil
}

// runBatch executes tasks concurrently, one goroutine each, waiting for all
// to finish. Failure of one task never aborts siblings (spec.md "Errors in
// one batch member do not abort siblings").
func (s *Scheduler) runBatch(ctx context.Context, tasks []*task.Task) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *task.Task) {
			defer wg.Done()
			s.runOne(ctx, t)
		}(t)
	}
	wg.Wait()
}

// runOne executes a single task through to DONE or FAILED, applying the
// retry double-transition of spec.md §4.5 on executor failure.
func (s *Scheduler) runOne(ctx context.Context, t *task.Task) {
	if err := t.Transition(taskstate.Running); err != nil {
		s.Logger.Error(ctx, "invalid transition to RUNNING", "task", t.ID, "err", err)
		return
	}
	if err := s.Store.Update(ctx, t); err != nil {
		s.Logger.Error(ctx, "persist RUNNING failed", "task", t.ID, "err", err)
		return
	}

	for {
		out, err := s.Executor.Execute(ctx, t)
		if err == nil {
			t.Output = out
			if terr := t.Transition(taskstate.Done); terr != nil {
				s.Logger.Error(ctx, "invalid transition to DONE", "task", t.ID, "err", terr)
				return
			}
			_ = s.Store.Update(ctx, t)
			return
		}

		t.Err = task.Error{Message: err.Error()}
		_ = t.Transition(taskstate.Failed)
		_ = s.Store.Update(ctx, t)
		if t.CanRetry() {
			t.RetryCount++
			// FAILED -> RETRYING -> RUNNING: the double transition lets
			// persistence observers see every stage (spec.md §4.5).
			_ = t.Transition(taskstate.Retrying)
			_ = s.Store.Update(ctx, t)
			s.Sleep(ctx, s.RetryPolicy.Delay(t.RetryCount))
			if terr := t.Transition(taskstate.Running); terr != nil {
				s.Logger.Error(ctx, "invalid transition to RUNNING on retry", "task", t.ID, "err", terr)
				return
			}
			_ = s.Store.Update(ctx, t)
			continue
		}
		return
	}
}

func allTerminal(tasks []*task.Task) bool {
	for _, t := range tasks {
		if !taskstate.IsTerminal(t.Status) {
			return false
		}
	}
	return true
}
