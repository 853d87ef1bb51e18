// Package agent defines the Agent strategy interface and registry, per
// spec.md §4.8. Concrete agents (coding, review) live in sibling packages
// and dispatch task execution to a sandbox.Sandbox or the LLMGateway.
package agent

import (
	"context"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/planner"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/task"
)

// Agent is the strategy interface an AgentType selects. Capabilities
// reports which task.Type values executeTask supports; RunEngine and the
// scheduler never need to special-case a concrete agent.
type Agent interface {
	Plan(ctx context.Context, r *run.Run, prompt string) (planner.Plan, error)
	ExecuteTask(ctx context.Context, t *task.Task) (task.Output, error)
	Synthesize(ctx context.Context, r *run.Run, tasks []*task.Task) (string, error)
	Capabilities() map[task.Type]bool
}

// Registry maps a run.AgentType to its Agent implementation. Lookup fails
// fast in strict mode: an unregistered type is a PolicyError, never a
// silent no-op.
type Registry struct {
	agents map[run.AgentType]Agent
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[run.AgentType]Agent)}
}

// Register installs agent under agentType, replacing any prior entry.
func (r *Registry) Register(agentType run.AgentType, a Agent) {
	r.agents[agentType] = a
}

// Resolve looks up the Agent for agentType, returning a PolicyError if
// none is registered.
func (r *Registry) Resolve(agentType run.AgentType) (Agent, error) {
	a, ok := r.agents[agentType]
	if !ok {
		return nil, enginerr.New(enginerr.KindPolicy, "unsupported agent type: "+string(agentType))
	}
	return a, nil
}

// ErrUnsupportedTaskType is returned by ExecuteTask when the agent's
// capability set does not include the task's type.
func ErrUnsupportedTaskType(t task.Type) error {
	return enginerr.New(enginerr.KindPolicy, "unsupported task type: "+string(t))
}

// DefaultSynthesize produces a deterministic fallback summary listing each
// task's status and output, used when an agent has no richer Synthesize
// logic or when budget exhaustion forces a graceful degrade (spec.md §7:
// "Budget violations in the synthesis step degrade gracefully").
func DefaultSynthesize(tasks []*task.Task) string {
	if len(tasks) == 0 {
		return "No tasks were executed."
	}
	out := "Run summary:\n"
	for _, t := range tasks {
		out += "- " + t.ID + " (" + string(t.Type) + "): " + string(t.Status)
		if t.Output.Content != "" {
			out += " — " + t.Output.Content
		}
		out += "\n"
	}
	return out
}
