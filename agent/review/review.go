// Package review implements ReviewAgent, the Agent variant that supports
// only the analyze and review task types, per spec.md §4.8.
package review

import (
	"context"

	"github.com/agentforge/runengine/agent"
	"github.com/agentforge/runengine/llm"
	"github.com/agentforge/runengine/model"
	"github.com/agentforge/runengine/planner"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/sandbox"
	"github.com/agentforge/runengine/task"
)

// Agent is the review-only Agent: read-only filesystem inspection plus
// LLM-backed review commentary, with no write/shell/git access.
type Agent struct {
	Planner         *planner.Planner
	Sandbox         sandbox.FileSystem
	Gateway         *llm.Gateway
	DefaultProvider string
	DefaultModel    string
}

// New constructs a review Agent.
func New(p *planner.Planner, fs sandbox.FileSystem, gw *llm.Gateway, defaultProvider, defaultModel string) *Agent {
	return &Agent{Planner: p, Sandbox: fs, Gateway: gw, DefaultProvider: defaultProvider, DefaultModel: defaultModel}
}

// Capabilities reports support for analyze and review only.
func (a *Agent) Capabilities() map[task.Type]bool {
	return map[task.Type]bool{
		task.TypeAnalyze: true,
		task.TypeReview:   true,
	}
}

// Plan delegates to the Planner.
func (a *Agent) Plan(ctx context.Context, r *run.Run, prompt string) (planner.Plan, error) {
	return a.Planner.Plan(ctx, r, prompt)
}

// ExecuteTask dispatches analyze to the read-only filesystem surface and
// review to the LLMGateway; any other type is unsupported.
func (a *Agent) ExecuteTask(ctx context.Context, t *task.Task) (task.Output, error) {
	switch t.Type {
	case task.TypeAnalyze:
		res, err := a.Sandbox.ReadFile(ctx, t.Input.Description)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: res.Output, Metadata: res.Metadata}, nil
	case task.TypeReview:
		req := model.Request{
			RunID: t.RunID,
			Messages: []model.Message{
				{Role: model.RoleUser, Text: t.Input.Description},
			},
		}
		call, err := a.Gateway.GenerateText(ctx, req, "", a.DefaultProvider, a.DefaultModel)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: call.Response.Text}, nil
	default:
		return task.Output{}, agent.ErrUnsupportedTaskType(t.Type)
	}
}

// Synthesize falls back to the deterministic summary.
func (a *Agent) Synthesize(_ context.Context, _ *run.Run, tasks []*task.Task) (string, error) {
	return agent.DefaultSynthesize(tasks), nil
}
