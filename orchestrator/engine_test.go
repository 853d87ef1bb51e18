package orchestrator_test

import (
	"context"
	"testing"

	"github.com/agentforge/runengine/agent"
	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/orchestrator"
	"github.com/agentforge/runengine/planner"
	"github.com/agentforge/runengine/recovery"
	"github.com/agentforge/runengine/run"
	runinmem "github.com/agentforge/runengine/run/inmem"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/scheduler"
	"github.com/agentforge/runengine/task"
	taskinmem "github.com/agentforge/runengine/task/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a minimal agent.Agent stand-in that returns a fixed
// two-task linear plan and executes every task as an immediate success.
type fakeAgent struct{}

func (fakeAgent) Plan(_ context.Context, _ *run.Run, _ string) (planner.Plan, error) {
	return planner.Plan{
		Tasks: []planner.PlannedTask{
			{ID: "a", Type: "analyze", Description: "look"},
			{ID: "b", Type: "edit", Description: "change", DependsOn: []string{"a"}},
		},
		Metadata: planner.PlanMetadata{EstimatedSteps: 2},
	}, nil
}

func (fakeAgent) ExecuteTask(_ context.Context, t *task.Task) (task.Output, error) {
	return task.Output{Content: "done:" + t.ID}, nil
}

func (fakeAgent) Synthesize(_ context.Context, _ *run.Run, tasks []*task.Task) (string, error) {
	return agent.DefaultSynthesize(tasks), nil
}

func (fakeAgent) Capabilities() map[task.Type]bool {
	return map[task.Type]bool{task.TypeAnalyze: true, task.TypeEdit: true}
}

func newEngine(t *testing.T) (*orchestrator.Engine, *runinmem.Store, *taskinmem.Store) {
	t.Helper()
	runs := runinmem.New()
	tasks := taskinmem.New()
	agents := agent.NewRegistry()
	agents.Register(run.AgentCoding, fakeAgent{})

	sched := scheduler.New(tasks, executorAdapter{agents})
	ledger := cost.NewInmemLedger()
	bm := budget.NewManager(budget.Config{}, ledger)
	rec := recovery.New(runs, tasks)

	return orchestrator.New(runs, tasks, agents, sched, rec, bm), runs, tasks
}

// executorAdapter bridges agent.Registry into scheduler.Executor for a
// single known agent type, always resolving the coding agent (as
// cmd/enginectl's agentExecutor does).
type executorAdapter struct {
	agents *agent.Registry
}

func (e executorAdapter) Execute(ctx context.Context, t *task.Task) (task.Output, error) {
	a, err := e.agents.Resolve(run.AgentCoding)
	if err != nil {
		return task.Output{}, err
	}
	return a.ExecuteTask(ctx, t)
}

func TestEngine_ExecuteCompletesLinearPlan(t *testing.T) {
	e, _, _ := newEngine(t)
	r, err := e.Execute(context.Background(), "", run.Input{Prompt: "fix it", AgentType: run.AgentCoding})
	require.NoError(t, err)
	assert.Equal(t, runstate.Completed, r.Status)
	assert.Contains(t, r.Output, "done:b")
}

func TestEngine_CancelIsIdempotent(t *testing.T) {
	e, runs, _ := newEngine(t)
	r := run.New("run-1", run.Input{Prompt: "x", AgentType: run.AgentCoding})
	require.NoError(t, runs.Create(context.Background(), r))

	require.NoError(t, e.Cancel(context.Background(), "run-1", "user requested"))
	got, _ := runs.Get(context.Background(), "run-1")
	assert.Equal(t, runstate.Cancelled, got.Status)

	// Second cancel on an already-terminal run is a no-op, not an error.
	require.NoError(t, e.Cancel(context.Background(), "run-1", "again"))
}

func TestEngine_UnsupportedAgentType(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.Execute(context.Background(), "", run.Input{Prompt: "x", AgentType: "nonexistent"})
	assert.Error(t, err)
}
