// Package recovery implements RunRecovery: resuming a run after a process
// restart by reconstructing its state from persisted tasks, per spec.md
// §4.6.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/taskstate"
)

// Recovery resumes runs that were interrupted mid-flight (process crash,
// redeploy). It never invents task outcomes: every decision is derived from
// what is already persisted.
type Recovery struct {
	Runs  run.Store
	Tasks task.Store
}

// New constructs a Recovery over the given stores.
func New(runs run.Store, tasks task.Store) *Recovery {
	return &Recovery{Runs: runs, Tasks: tasks}
}

// ResumeRun loads runID, reconstructs its state from persisted tasks, and
// refuses to resume a run already in a terminal state.
func (r *Recovery) ResumeRun(ctx context.Context, runID string) (*run.Run, error) {
	rec, err := r.Runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := r.ReconstructState(ctx, rec); err != nil {
		return nil, err
	}
	if runstate.IsTerminal(rec.Status) {
		return nil, enginerr.New(enginerr.KindValidation,
			fmt.Sprintf("run %s is already %s, cannot resume", runID, rec.Status))
	}
	return rec, nil
}

// ReconstructState scans rec's tasks and derives (and persists, if
// changed) the run's status per spec.md §4.6:
//   - every task terminal with none failed/cancelled -> COMPLETED
//   - any FAILED task -> FAILED, metadata.error = "N task(s) failed"
//   - any CANCELLED task (none failed) -> CANCELLED
//   - otherwise -> RUNNING (forced, if not already)
func (r *Recovery) ReconstructState(ctx context.Context, rec *run.Run) error {
	tasks, err := r.Tasks.ListByRun(ctx, rec.ID)
	if err != nil {
		return err
	}

	failedCount := 0
	anyCancelled := false
	allTerminal := true
	for _, t := range tasks {
		switch t.Status {
		case taskstate.Failed:
			failedCount++
		case taskstate.Cancelled:
			anyCancelled = true
		}
		if !taskstate.IsTerminal(t.Status) {
			allTerminal = false
		}
	}

	var target runstate.Status
	var errMsg string
	switch {
	case failedCount > 0:
		target = runstate.Failed
		errMsg = fmt.Sprintf("%d task(s) failed", failedCount)
	case anyCancelled:
		target = runstate.Cancelled
	case allTerminal:
		target = runstate.Completed
	default:
		target = runstate.Running
	}

	if rec.Status == target {
		return nil
	}
	if !runstate.CanTransition(rec.Status, target) {
		// Recovery may need to force a state unreachable via the normal
		// edge map (e.g. CREATED -> RUNNING after a crash mid-plan); this
		// is the one place that bypasses Transition's edge check, since it
		// is reconstructing ground truth rather than applying a new event.
		// It still owes Metadata the same unconditional stamps Transition
		// would have applied.
		now := time.Now()
		rec.Status = target
		if target == runstate.Failed {
			rec.Metadata.Error = errMsg
		}
		if runstate.IsTerminal(target) {
			rec.Metadata.CompletedAt = now
		}
		rec.Metadata.UpdatedAt = now
		return r.Runs.Update(ctx, rec)
	}
	if err := rec.Transition(target, errMsg); err != nil {
		return err
	}
	return r.Runs.Update(ctx, rec)
}

// FindLastIncompleteTask returns the last task (insertion order) whose
// status is not terminal, or nil if every task is terminal. This is the
// resumption point for a crashed scheduler loop.
func (r *Recovery) FindLastIncompleteTask(ctx context.Context, runID string) (*task.Task, error) {
	tasks, err := r.Tasks.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var last *task.Task
	for _, t := range tasks {
		if !taskstate.IsTerminal(t.Status) {
			last = t
		}
	}
	return last, nil
}
