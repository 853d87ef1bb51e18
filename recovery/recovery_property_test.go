package recovery_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentforge/runengine/recovery"
	"github.com/agentforge/runengine/run"
	runinmem "github.com/agentforge/runengine/run/inmem"
	"github.com/agentforge/runengine/runstate"
	"github.com/agentforge/runengine/task"
	taskinmem "github.com/agentforge/runengine/task/inmem"
	"github.com/agentforge/runengine/taskstate"
)

func genTaskStatus() gopter.Gen {
	return gen.OneConstOf(
		taskstate.Pending, taskstate.Ready, taskstate.Running, taskstate.Blocked,
		taskstate.Done, taskstate.Failed, taskstate.Cancelled, taskstate.Retrying,
	)
}

// TestProperty_RecoveryIdempotence verifies P7: running ReconstructState
// twice in a row against the same persisted tasks yields the same run
// status as running it once; reconstruction derives state from what is
// persisted rather than accumulating side effects across calls.
func TestProperty_RecoveryIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("reconstructing twice is the same as reconstructing once", prop.ForAll(
		func(statuses []taskstate.Status) bool {
			ctx := context.Background()
			runs := runinmem.New()
			tasks := taskinmem.New()

			r := run.New("run-1", run.Input{Prompt: "do it"})
			_ = r.Transition(runstate.Planning, "")
			_ = r.Transition(runstate.Running, "")
			if err := runs.Create(ctx, r); err != nil {
				return false
			}

			for i, s := range statuses {
				tk := task.New("run-1", idFor(i), task.TypeAnalyze, nil, task.Input{}, 3)
				tk.Status = s
				if err := tasks.Create(ctx, tk); err != nil {
					return false
				}
			}

			rec := recovery.New(runs, tasks)
			if err := rec.ReconstructState(ctx, r); err != nil {
				return false
			}
			firstStatus := r.Status
			firstErr := r.Metadata.Error

			if err := rec.ReconstructState(ctx, r); err != nil {
				return false
			}
			return r.Status == firstStatus && r.Metadata.Error == firstErr
		},
		gen.SliceOfN(6, genTaskStatus()),
	))

	properties.TestingRun(t)
}

func idFor(i int) string {
	return string(rune('a' + i))
}
