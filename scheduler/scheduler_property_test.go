package scheduler_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentforge/runengine/scheduler"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/task/inmem"
	"github.com/agentforge/runengine/taskstate"
)

type alwaysSucceedsExecutor struct{}

func (alwaysSucceedsExecutor) Execute(_ context.Context, t *task.Task) (task.Output, error) {
	return task.Output{Content: "ok"}, nil
}

const maxSchedulerDAGSize = 8

// genAcyclicTasks builds a random DAG (each task depends only on
// earlier-indexed tasks, guaranteeing acyclicity) with no missing-dependency
// edges, so the scheduler is guaranteed a legal plan to run.
func genAcyclicTasks() gopter.Gen {
	return gen.SliceOfN(maxSchedulerDAGSize*maxSchedulerDAGSize, gen.Float64Range(0, 1)).Map(func(flips []float64) []*task.Task {
		n := 1 + int(flips[0]*float64(maxSchedulerDAGSize-1))
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		tasks := make([]*task.Task, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if flips[(i*maxSchedulerDAGSize+j)%len(flips)] > 0.6 {
					deps = append(deps, ids[j])
				}
			}
			tasks[i] = task.New("run-1", ids[i], task.TypeAnalyze, deps, task.Input{}, 3)
		}
		return tasks
	})
}

// TestProperty_SchedulerProgressAndTermination verifies P8: for any legal
// (acyclic, no missing-dependency) task graph and an executor that always
// succeeds, Scheduler.Execute terminates and leaves every task DONE.
func TestProperty_SchedulerProgressAndTermination(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 75
	properties := gopter.NewProperties(parameters)

	properties.Property("a legal graph with a succeeding executor always finishes", prop.ForAll(
		func(tasks []*task.Task) bool {
			ctx := context.Background()
			store := inmem.New()
			for _, tk := range tasks {
				if len(tk.Dependencies) == 0 {
					if err := tk.Transition(taskstate.Ready); err != nil {
						return false
					}
				}
				if err := store.Create(ctx, tk); err != nil {
					return false
				}
			}

			s := scheduler.New(store, alwaysSucceedsExecutor{}, scheduler.WithConcurrencyLimit(3))
			if err := s.Execute(ctx, "run-1"); err != nil {
				return false
			}

			for _, tk := range tasks {
				got, err := store.Get(ctx, "run-1", tk.ID)
				if err != nil || got.Status != taskstate.Done {
					return false
				}
			}
			return true
		},
		genAcyclicTasks(),
	))

	properties.TestingRun(t)
}
