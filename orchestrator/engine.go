// Package orchestrator implements the pipeline driver named RunEngine in
// spec.md §4.12 — here called Engine to avoid colliding with the
// workflow-engine abstraction used by the optional Temporal-backed host.
package orchestrator

import (
	"context"

	"github.com/agentforge/runengine/agent"
	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/recovery"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/scheduler"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/taskstate"
	"github.com/agentforge/runengine/telemetry"
	"github.com/google/uuid"
)

// Engine drives a single execute() call through
// getOrCreateRun -> plan -> createTasks -> schedule -> synthesize -> persist,
// exactly the pipeline of spec.md §4.12.
type Engine struct {
	Runs      run.Store
	Tasks     task.Store
	Agents    *agent.Registry
	Scheduler *scheduler.Scheduler
	Recovery  *recovery.Recovery
	Budget    *budget.Manager
	Logger    telemetry.Logger
}

// New constructs an Engine over its collaborators.
func New(runs run.Store, tasks task.Store, agents *agent.Registry, sched *scheduler.Scheduler, rec *recovery.Recovery, bm *budget.Manager, opts ...Option) *Engine {
	e := &Engine{Runs: runs, Tasks: tasks, Agents: agents, Scheduler: sched, Recovery: rec, Budget: bm, Logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger attaches a telemetry.Logger.
func WithLogger(l telemetry.Logger) Option { return func(e *Engine) { e.Logger = l } }

// Execute runs the full pipeline for input, returning the Run's final
// state. On a plan error the run transitions straight to FAILED; on any
// other error reconstructState is called before the error is returned
// (spec.md §4.12).
func (e *Engine) Execute(ctx context.Context, runID string, input run.Input) (*run.Run, error) {
	if e.Budget != nil && input.SessionID != "" {
		if err := e.Budget.LoadSessionCosts(ctx, input.SessionID); err != nil {
			return nil, err
		}
	}

	r, err := e.getOrCreateRun(ctx, runID, input)
	if err != nil {
		return nil, err
	}

	a, err := e.Agents.Resolve(input.AgentType)
	if err != nil {
		return nil, err
	}

	if err := r.Transition(runstate.Planning, ""); err != nil {
		return nil, err
	}
	if err := e.Runs.Update(ctx, r); err != nil {
		return nil, err
	}

	plan, err := a.Plan(ctx, r, input.Prompt)
	if err != nil {
		_ = r.Transition(runstate.Failed, err.Error())
		_ = e.Runs.Update(ctx, r)
		return r, err
	}

	for _, pt := range plan.Tasks {
		t := task.New(r.ID, pt.ID, task.Type(pt.Type), pt.DependsOn,
			task.Input{Description: pt.Description, ExpectedOutput: pt.ExpectedOutput}, 0)
		if err := e.Tasks.Create(ctx, t); err != nil {
			_ = e.Recovery.ReconstructState(ctx, r)
			return r, err
		}
	}

	if err := r.Transition(runstate.Running, ""); err != nil {
		return nil, err
	}
	if err := e.Runs.Update(ctx, r); err != nil {
		return nil, err
	}

	if err := e.Scheduler.Execute(ctx, r.ID); err != nil {
		if rerr := e.Recovery.ReconstructState(ctx, r); rerr != nil {
			return nil, rerr
		}
		return r, err
	}

	tasks, err := e.Tasks.ListByRun(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	final, err := a.Synthesize(ctx, r, tasks)
	if err != nil {
		final = agent.DefaultSynthesize(tasks)
		e.Logger.Warn(ctx, "synthesize failed, using fallback summary", "run", r.ID, "err", err)
	}

	r.Output = final
	if err := r.Transition(runstate.Completed, ""); err != nil {
		_ = e.Recovery.ReconstructState(ctx, r)
		return r, err
	}
	if err := e.Runs.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// getOrCreateRun loads runID if it already exists, otherwise creates a new
// Run in CREATED state with a fresh UUID if runID is empty.
func (e *Engine) getOrCreateRun(ctx context.Context, runID string, input run.Input) (*run.Run, error) {
	if runID != "" {
		r, err := e.Runs.Get(ctx, runID)
		if err == nil {
			return r, nil
		}
		if err != run.ErrNotFound {
			return nil, err
		}
	} else {
		runID = uuid.NewString()
	}
	r := run.New(runID, input)
	if err := e.Runs.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel is idempotent: if runID's run is non-terminal, it transitions to
// CANCELLED and cascade-cancels every task in {PENDING, READY, RUNNING},
// per spec.md §4.12.
func (e *Engine) Cancel(ctx context.Context, runID string, reason string) error {
	r, err := e.Runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if runstate.IsTerminal(r.Status) {
		return nil
	}

	tasks, err := e.Tasks.ListByRun(ctx, runID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		switch t.Status {
		case taskstate.Pending, taskstate.Ready, taskstate.Running:
			if err := t.Transition(taskstate.Cancelled); err != nil {
				return err
			}
			if err := e.Tasks.Update(ctx, t); err != nil {
				return err
			}
		}
	}

	r.Metadata.CancellationReason = reason
	if err := r.Transition(runstate.Cancelled, ""); err != nil {
		return err
	}
	return e.Runs.Update(ctx, r)
}
