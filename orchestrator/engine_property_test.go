package orchestrator_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/taskstate"
)

func genAnyTaskStatus() gopter.Gen {
	return gen.OneConstOf(
		taskstate.Pending, taskstate.Ready, taskstate.Running, taskstate.Blocked,
		taskstate.Done, taskstate.Failed, taskstate.Cancelled, taskstate.Retrying,
	)
}

// cancellable mirrors Engine.Cancel's own switch over which task statuses
// are subject to cascade-cancellation: PENDING, READY and RUNNING. Every
// other status (including FAILED, which taskstate.IsTerminal does not
// count as terminal) is left exactly as Engine.Cancel finds it.
func cancellable(s taskstate.Status) bool {
	return s == taskstate.Pending || s == taskstate.Ready || s == taskstate.Running
}

// TestProperty_CancellationTotality verifies P6: after Engine.Cancel, every
// task in {PENDING, READY, RUNNING} ends CANCELLED, and every other task
// keeps its original status untouched.
func TestProperty_CancellationTotality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("cancel settles every cancellable task to CANCELLED, leaves the rest alone", prop.ForAll(
		func(statuses []taskstate.Status) bool {
			engine, runs, tasks := newEngine(t)
			ctx := context.Background()

			r := run.New("run-1", run.Input{Prompt: "do it"})
			if err := r.Transition(runstate.Planning, ""); err != nil {
				return false
			}
			if err := r.Transition(runstate.Running, ""); err != nil {
				return false
			}
			if err := runs.Create(ctx, r); err != nil {
				return false
			}

			wasCancellable := make(map[string]bool, len(statuses))
			for i, s := range statuses {
				id := string(rune('a' + i))
				tk := task.New("run-1", id, task.TypeAnalyze, nil, task.Input{}, 3)
				tk.Status = s
				wasCancellable[id] = cancellable(s)
				if err := tasks.Create(ctx, tk); err != nil {
					return false
				}
			}

			if err := engine.Cancel(ctx, "run-1", "operator requested"); err != nil {
				return false
			}

			for i, s := range statuses {
				id := string(rune('a' + i))
				got, err := tasks.Get(ctx, "run-1", id)
				if err != nil {
					return false
				}
				if wasCancellable[id] {
					if got.Status != taskstate.Cancelled {
						return false
					}
				} else if got.Status != s {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, genAnyTaskStatus()),
	))

	properties.TestingRun(t)
}
