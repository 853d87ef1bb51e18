// Package temporal provides an optional Temporal-backed durable execution
// mode for the RuntimeHost, per SPEC_FULL.md §4.13: Execute runs as a
// Temporal workflow so RunRecovery composes with Temporal's own replay-based
// crash resumption instead of, or alongside, the KV-store-driven recovery
// path in spec.md §4.6. The KV store remains the source of truth for
// Run/Task status regardless of which durable backend is in play; this
// package only changes how Execute is driven, not where state lives.
//
// Grounded on the teacher pack's runtime/agent/engine/temporal/engine.go
// adapter, narrowed to a single workflow/activity pair since this engine
// has one call shape (execute) rather than goa-ai's arbitrary
// workflow/activity registration surface.
package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentforge/runengine/orchestrator"
	"github.com/agentforge/runengine/run"
)

// WorkflowName and ExecuteActivityName identify the registered workflow and
// activity on the task queue; exported so operator tooling can query
// workflow history without importing this package's internals.
const (
	WorkflowName        = "RunEngineExecute"
	ExecuteActivityName = "RunEngineExecuteActivity"
)

// ExecuteRequest is the workflow/activity input, since Temporal requires
// a single serializable argument pair rather than the wider getOrCreateRun
// argument list.
type ExecuteRequest struct {
	RunID string
	Input run.Input
}

// Activities binds the orchestrator.Engine to Temporal activity functions.
// A single Engine instance is shared by every activity invocation the
// worker processes, matching the single-owner RuntimeHost's existing
// in-process design.
type Activities struct {
	Engine *orchestrator.Engine
}

// ExecuteActivity runs one Engine.Execute call. Temporal retries the
// activity per the workflow's RetryPolicy on transient failure; the
// Engine's own error taxonomy (enginerr.Error.Retryable) still governs
// whether a given failure is worth retrying at the task level inside a
// single Execute call.
func (a *Activities) ExecuteActivity(ctx context.Context, req ExecuteRequest) (*run.Run, error) {
	return a.Engine.Execute(ctx, req.RunID, req.Input)
}

// ExecuteWorkflow drives one run to completion as a Temporal workflow. It
// is a thin pass-through to ExecuteActivity with a bounded retry policy;
// the workflow itself holds no business logic so replay determinism is
// trivially satisfied.
func ExecuteWorkflow(ctx workflow.Context, req ExecuteRequest) (*run.Run, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var result *run.Run
	err := workflow.ExecuteActivity(ctx, ExecuteActivityName, req).Get(ctx, &result)
	return result, err
}

// Host adapts the Temporal client/worker pair to the same Execute/Cancel
// shape host.Host exposes, so transport/http can be wired against either
// implementation interchangeably.
type Host struct {
	Client    client.Client
	TaskQueue string
	worker    worker.Worker
}

// New constructs a Host, registering the workflow and activity functions on
// a worker for taskQueue. Callers must still call Worker().Run(...) (or
// Worker().Start()) to begin processing, mirroring go.temporal.io/sdk's own
// worker lifecycle rather than hiding it behind this package.
func New(c client.Client, taskQueue string, engine *orchestrator.Engine) *Host {
	w := worker.New(c, taskQueue, worker.Options{})
	activities := &Activities{Engine: engine}
	w.RegisterWorkflowWithOptions(ExecuteWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(activities.ExecuteActivity, activity.RegisterOptions{Name: ExecuteActivityName})
	return &Host{Client: c, TaskQueue: taskQueue, worker: w}
}

// Worker exposes the underlying worker.Worker for lifecycle control
// (Run/Start/Stop), matching how goa-ai's adapter leaves worker management
// to the caller rather than owning a background goroutine implicitly.
func (h *Host) Worker() worker.Worker { return h.worker }

// Execute starts a workflow execution with ID "run-"+runID and blocks for
// its result, presenting the same synchronous
// Execute shape as host.Host.Execute.
func (h *Host) Execute(ctx context.Context, runID string, input run.Input) (*run.Run, error) {
	opts := client.StartWorkflowOptions{
		ID:        "run-" + runID,
		TaskQueue: h.TaskQueue,
	}
	we, err := h.Client.ExecuteWorkflow(ctx, opts, ExecuteWorkflow, ExecuteRequest{RunID: runID, Input: input})
	if err != nil {
		return nil, err
	}
	var result *run.Run
	if err := we.Get(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel cancels the Temporal workflow execution "run-"+runID and nothing
// else: it does not call Engine.Cancel, so the Run and its tasks keep their
// statuses in the stores (no task-level cancellation cascade), and reason
// is not recorded.
func (h *Host) Cancel(ctx context.Context, runID, reason string) error {
	return h.Client.CancelWorkflow(ctx, "run-"+runID, "")
}
