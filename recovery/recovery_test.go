package recovery_test

import (
	"context"
	"testing"

	"github.com/agentforge/runengine/recovery"
	"github.com/agentforge/runengine/run"
	runinmem "github.com/agentforge/runengine/run/inmem"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/task"
	taskinmem "github.com/agentforge/runengine/task/inmem"
	"github.com/agentforge/runengine/taskstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningRun(t *testing.T, runs *runinmem.Store, id string) *run.Run {
	t.Helper()
	r := run.New(id, run.Input{Prompt: "do it"})
	require.NoError(t, r.Transition(runstate.Planning, ""))
	require.NoError(t, r.Transition(runstate.Running, ""))
	require.NoError(t, runs.Create(context.Background(), r))
	return r
}

func TestReconstructState_AllDoneCompletesRun(t *testing.T) {
	ctx := context.Background()
	runs := runinmem.New()
	tasks := taskinmem.New()
	r := newRunningRun(t, runs, "run-1")

	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, a.Transition(taskstate.Running))
	require.NoError(t, a.Transition(taskstate.Done))
	require.NoError(t, tasks.Create(ctx, a))

	rec := recovery.New(runs, tasks)
	require.NoError(t, rec.ReconstructState(ctx, r))
	assert.Equal(t, runstate.Completed, r.Status)
}

func TestReconstructState_AnyFailedFailsRun(t *testing.T) {
	ctx := context.Background()
	runs := runinmem.New()
	tasks := taskinmem.New()
	r := newRunningRun(t, runs, "run-1")

	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 0)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, a.Transition(taskstate.Running))
	require.NoError(t, a.Transition(taskstate.Failed))
	require.NoError(t, tasks.Create(ctx, a))

	rec := recovery.New(runs, tasks)
	require.NoError(t, rec.ReconstructState(ctx, r))
	assert.Equal(t, runstate.Failed, r.Status)
	assert.Equal(t, "1 task(s) failed", r.Metadata.Error)
}

func TestReconstructState_IncompleteStaysRunning(t *testing.T) {
	ctx := context.Background()
	runs := runinmem.New()
	tasks := taskinmem.New()
	r := newRunningRun(t, runs, "run-1")

	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	require.NoError(t, tasks.Create(ctx, a)) // still PENDING

	rec := recovery.New(runs, tasks)
	require.NoError(t, rec.ReconstructState(ctx, r))
	assert.Equal(t, runstate.Running, r.Status)
}

func TestReconstructState_PausedRunWithFailedTaskStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	runs := runinmem.New()
	tasks := taskinmem.New()
	r := newRunningRun(t, runs, "run-1")
	require.NoError(t, r.Transition(runstate.Paused, ""))
	require.NoError(t, runs.Update(ctx, r))
	beforeUpdatedAt := r.Metadata.UpdatedAt
	require.True(t, r.Metadata.CompletedAt.IsZero())

	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 0)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, a.Transition(taskstate.Running))
	require.NoError(t, a.Transition(taskstate.Failed))
	require.NoError(t, tasks.Create(ctx, a))

	// PAUSED -> FAILED isn't a legal runstate edge, so ReconstructState must
	// take the forced bypass branch rather than rec.Transition.
	require.False(t, runstate.CanTransition(runstate.Paused, runstate.Failed))

	rec := recovery.New(runs, tasks)
	require.NoError(t, rec.ReconstructState(ctx, r))

	assert.Equal(t, runstate.Failed, r.Status)
	assert.Equal(t, "1 task(s) failed", r.Metadata.Error)
	assert.False(t, r.Metadata.CompletedAt.IsZero())
	assert.True(t, r.Metadata.UpdatedAt.After(beforeUpdatedAt))
}

func TestResumeRun_RefusesTerminalRun(t *testing.T) {
	ctx := context.Background()
	runs := runinmem.New()
	tasks := taskinmem.New()
	r := newRunningRun(t, runs, "run-1")
	require.NoError(t, r.Transition(runstate.Completed, ""))
	require.NoError(t, runs.Update(ctx, r))

	rec := recovery.New(runs, tasks)
	_, err := rec.ResumeRun(ctx, "run-1")
	assert.Error(t, err)
}

func TestFindLastIncompleteTask(t *testing.T) {
	ctx := context.Background()
	tasks := taskinmem.New()
	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, a.Transition(taskstate.Running))
	require.NoError(t, a.Transition(taskstate.Done))
	require.NoError(t, tasks.Create(ctx, a))

	b := task.New("run-1", "b", task.TypeEdit, []string{"a"}, task.Input{}, 3)
	require.NoError(t, tasks.Create(ctx, b))

	rec := recovery.New(runinmem.New(), tasks)
	last, err := rec.FindLastIncompleteTask(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.ID)
}
