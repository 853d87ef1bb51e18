package resolver

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentforge/runengine/task"
)

// maxDAGSize bounds the fixed-length coin-flip slice genDAG draws from; the
// task count for a given sample is derived from the flips themselves so a
// single gen.SliceOfN is enough, with no FlatMap-driven variable-length
// generator needed.
const maxDAGSize = 12

// genDAG builds a random acyclic task list over a fixed ID alphabet: each
// task may only depend on tasks earlier in the slice, which guarantees the
// generated graph is acyclic by construction.
func genDAG() gopter.Gen {
	return gen.SliceOfN(maxDAGSize*maxDAGSize, gen.Float64Range(0, 1)).Map(func(flips []float64) []*task.Task {
		n := 1 + int(flips[0]*float64(maxDAGSize-1))
		ids := make([]string, n)
		for i := range ids {
			ids[i] = idFor(i)
		}
		tasks := make([]*task.Task, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if flips[(i*maxDAGSize+j)%len(flips)] > 0.6 {
					deps = append(deps, ids[j])
				}
			}
			tasks[i] = &task.Task{ID: ids[i], Dependencies: deps}
		}
		return tasks
	})
}

func idFor(i int) string {
	return string(rune('a' + i))
}

// TestProperty_DAGSoundness verifies P2: for any DAG accepted by ValidateDAG,
// TopologicalSort returns a permutation where every task appears after all
// of its dependencies.
func TestProperty_DAGSoundness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("topological sort respects dependency order", prop.ForAll(
		func(tasks []*task.Task) bool {
			result := ValidateDAG(tasks)
			if !result.Valid {
				return true // only constructed DAGs are asserted on
			}
			sorted := TopologicalSort(tasks)
			position := make(map[string]int, len(sorted))
			for i, t := range sorted {
				position[t.ID] = i
			}
			for _, t := range sorted {
				for _, dep := range t.Dependencies {
					if position[dep] >= position[t.ID] {
						return false
					}
				}
			}
			return len(sorted) == len(tasks)
		},
		genDAG(),
	))

	properties.TestingRun(t)
}

// TestProperty_SelfLoopAlwaysRejected verifies a task depending on itself
// never validates, regardless of the rest of the graph.
func TestProperty_SelfLoopAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a task depending on itself is never valid", prop.ForAll(
		func(id string) bool {
			if id == "" {
				return true
			}
			tasks := []*task.Task{{ID: id, Dependencies: []string{id}}}
			return !ValidateDAG(tasks).Valid
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
