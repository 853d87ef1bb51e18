package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentforge/runengine/retry"
	"github.com/agentforge/runengine/scheduler"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/task/inmem"
	"github.com/agentforge/runengine/taskstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExecutor struct {
	failTasks map[string]int // taskID -> number of times to fail before succeeding
	calls     map[string]int
}

func newScriptedExecutor(failTasks map[string]int) *scriptedExecutor {
	return &scriptedExecutor{failTasks: failTasks, calls: map[string]int{}}
}

func (e *scriptedExecutor) Execute(_ context.Context, t *task.Task) (task.Output, error) {
	e.calls[t.ID]++
	if remaining, ok := e.failTasks[t.ID]; ok && e.calls[t.ID] <= remaining {
		return task.Output{}, errors.New("boom")
	}
	return task.Output{Content: "ok"}, nil
}

func TestScheduler_LinearPlan(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	b := task.New("run-1", "b", task.TypeEdit, []string{"a"}, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	s := scheduler.New(store, newScriptedExecutor(nil))
	err := s.Execute(ctx, "run-1")
	require.NoError(t, err)

	got, err := store.Get(ctx, "run-1", "b")
	require.NoError(t, err)
	assert.Equal(t, taskstate.Done, got.Status)
}

func TestScheduler_DependencyFailureCascades(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	b := task.New("run-1", "b", task.TypeEdit, []string{"a"}, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	exec := newScriptedExecutor(map[string]int{"a": 99}) // always fails
	s := scheduler.New(store, exec, scheduler.WithRetryPolicy(retry.Policy{MaxRetries: 0, Base: 0, Multiplier: 1}))
	err := s.Execute(ctx, "run-1")
	require.Error(t, err)

	gotA, _ := store.Get(ctx, "run-1", "a")
	assert.Equal(t, taskstate.Failed, gotA.Status)

	gotB, _ := store.Get(ctx, "run-1", "b")
	assert.Equal(t, taskstate.Failed, gotB.Status)
	assert.Contains(t, gotB.Err.Message, "Dependency task a failed")
}

func TestScheduler_Deadlock(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	// b depends on a nonexistent task id "missing" — not present in store at all.
	b := task.New("run-1", "b", task.TypeEdit, []string{"missing"}, task.Input{}, 3)
	require.NoError(t, store.Create(ctx, b))

	s := scheduler.New(store, newScriptedExecutor(nil))
	err := s.Execute(ctx, "run-1")
	require.Error(t, err)
}

func TestScheduler_RetryThenSucceed(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, store.Create(ctx, a))

	exec := newScriptedExecutor(map[string]int{"a": 2}) // fails twice, then succeeds
	s := scheduler.New(store, exec, scheduler.WithRetryPolicy(retry.Policy{MaxRetries: 3, Base: 0, Multiplier: 1}))
	err := s.Execute(ctx, "run-1")
	require.NoError(t, err)

	got, _ := store.Get(ctx, "run-1", "a")
	assert.Equal(t, taskstate.Done, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestScheduler_RetryWaitsOutBackoffDelay(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	a := task.New("run-1", "a", task.TypeAnalyze, nil, task.Input{}, 3)
	require.NoError(t, a.Transition(taskstate.Ready))
	require.NoError(t, store.Create(ctx, a))

	var delays []time.Duration
	policy := retry.Policy{MaxRetries: 3, Base: time.Second, Multiplier: 2}
	exec := newScriptedExecutor(map[string]int{"a": 2}) // fails twice, then succeeds
	s := scheduler.New(store, exec,
		scheduler.WithRetryPolicy(policy),
		scheduler.WithSleep(func(_ context.Context, d time.Duration) {
			delays = append(delays, d)
		}),
	)
	err := s.Execute(ctx, "run-1")
	require.NoError(t, err)

	// RetryCount is 1, then 2 by the time each sleep is requested, so the
	// backoff matches Delay(1) then Delay(2): base, base*multiplier.
	require.Equal(t, []time.Duration{policy.Delay(1), policy.Delay(2)}, delays)
}
