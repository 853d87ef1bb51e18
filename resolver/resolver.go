// Package resolver implements DAG validation, topological ordering, and
// readiness checks over a run's task dependency graph. Dependencies are
// stored as ID lists (task.Task.Dependencies), not object pointers; cycles
// are prevented at validation time rather than by structural typing, per
// spec.md §9.
package resolver

import (
	"context"

	"github.com/agentforge/runengine/task"
	"github.com/agentforge/runengine/taskstate"
)

// ValidationResult reports the outcome of validateDAG.
type ValidationResult struct {
	Valid bool
	Error string
	// Cycle lists the task IDs forming a detected cycle, in traversal order,
	// when Valid is false due to a cycle (empty for self-loops).
	Cycle []string
}

// ValidateDAG rejects any self-reference (a task depending on itself) and
// any cycle among tasks, using DFS with a recursion-stack set.
func ValidateDAG(tasks []*task.Task) ValidationResult {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return ValidationResult{Valid: false, Error: "self-reference: task " + t.ID + " depends on itself"}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		t := byID[id]
		if t != nil {
			for _, dep := range t.Dependencies {
				switch color[dep] {
				case white:
					if visit(dep) {
						return true
					}
				case gray:
					cycle = cycleFrom(path, dep)
					return true
				}
			}
		}
		color[id] = black
		path = path[:len(path)-1]
		return false
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if visit(t.ID) {
				return ValidationResult{Valid: false, Error: "Cycle detected", Cycle: cycle}
			}
		}
	}
	return ValidationResult{Valid: true}
}

// cycleFrom extracts the cycle suffix of path starting at the repeated node.
func cycleFrom(path []string, repeated string) []string {
	for i, id := range path {
		if id == repeated {
			out := make([]string, len(path)-i)
			copy(out, path[i:])
			return out
		}
	}
	return path
}

// TopologicalSort returns tasks ordered so that every task appears after all
// of its dependencies (Kahn's algorithm), breaking ties by input order. The
// caller must have already validated the DAG; TopologicalSort does not
// itself detect cycles (a cyclic input yields a partial order with the
// involved tasks omitted).
func TopologicalSort(tasks []*task.Task) []*task.Task {
	byID := make(map[string]*task.Task, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	children := make(map[string][]string, len(tasks))
	order := make([]string, 0, len(tasks))

	for _, t := range tasks {
		byID[t.ID] = t
		order = append(order, t.ID)
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue
			}
			children[dep] = append(children[dep], t.ID)
			inDegree[t.ID]++
		}
	}

	queue := make([]string, 0, len(tasks))
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var sorted []*task.Task
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byID[id])
		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return sorted
}

// AreMet reports whether every dependency ID exists among siblings and is
// DONE. A nil or empty deps slice is trivially met.
func AreMet(_ context.Context, deps []string, siblings []*task.Task) bool {
	if len(deps) == 0 {
		return true
	}
	byID := make(map[string]taskstate.Status, len(siblings))
	for _, t := range siblings {
		byID[t.ID] = t.Status
	}
	for _, dep := range deps {
		status, ok := byID[dep]
		if !ok || status != taskstate.Done {
			return false
		}
	}
	return true
}
