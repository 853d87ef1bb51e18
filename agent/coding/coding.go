// Package coding implements CodingAgent, the Agent variant that supports
// every task.Type, per spec.md §4.8.
package coding

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

// Agent is the coding-capable Agent: it materializes a Plan via the
// Planner and dispatches every task type to the sandbox or the
// LLMGateway.
type Agent struct {
	Planner         *planner.Planner
	Sandbox         sandbox.Sandbox
	Gateway         *llm.Gateway
	DefaultProvider string
	DefaultModel    string
}

// New constructs a coding Agent.
func New(p *planner.Planner, sb sandbox.Sandbox, gw *llm.Gateway, defaultProvider, defaultModel string) *Agent {
	return &Agent{Planner: p, Sandbox: sb, Gateway: gw, DefaultProvider: defaultProvider, DefaultModel: defaultModel}
}

// Capabilities reports support for every task.Type.
func (a *Agent) Capabilities() map[task.Type]bool {
	return map[task.Type]bool{
		task.TypeAnalyze: true,
		task.TypeEdit:     true,
		task.TypeTest:     true,
		task.TypeReview:   true,
		task.TypeGit:      true,
		task.TypeShell:    true,
	}
}

// Plan delegates to the Planner.
func (a *Agent) Plan(ctx context.Context, r *run.Run, prompt string) (planner.Plan, error) {
	return a.Planner.Plan(ctx, r, prompt)
}

// ExecuteTask dispatches on t.Type per spec.md §4.8:
//   - analyze/edit -> sandbox filesystem ops
//   - test/shell   -> sandbox shell op (allow-list enforced)
//   - git          -> sandbox git op
//   - review       -> LLMGateway
func (a *Agent) ExecuteTask(ctx context.Context, t *task.Task) (task.Output, error) {
	switch t.Type {
	case task.TypeAnalyze:
		res, err := a.Sandbox.ReadFile(ctx, t.Input.Description)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: res.Output, Metadata: res.Metadata}, nil
	case task.TypeEdit:
		res, err := a.Sandbox.WriteFile(ctx, t.Input.Description, t.Input.ExpectedOutput)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: res.Output, Metadata: res.Metadata}, nil
	case task.TypeTest, task.TypeShell:
		if err := sandbox.ValidateShellCommand(t.Input.Description, nil); err != nil {
			return task.Output{}, err
		}
		res, err := a.Sandbox.Run(ctx, t.Input.Description, nil)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: res.Output, Metadata: res.Metadata}, nil
	case task.TypeGit:
		res, err := a.Sandbox.Status(ctx)
		if err != nil {
			return task.Output{}, err
		}
		return task.Output{Content: res.Output, Metadata: res.Metadata}, nil
	case task.TypeReview:
		return a.reviewViaGateway(ctx, t)
	default:
		return task.Output{}, agent.ErrUnsupportedTaskType(t.Type)
	}
}

func (a *Agent) reviewViaGateway(ctx context.Context, t *task.Task) (task.Output, error) {
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
}

// Synthesize falls back to the deterministic summary; a richer synthesis
// could call the LLMGateway with the tasks' outputs, but the spec's
// graceful-degrade path (budget exhaustion) always needs this available.
func (a *Agent) Synthesize(_ context.Context, _ *run.Run, tasks []*task.Task) (string, error) {
	return agent.DefaultSynthesize(tasks), nil
}
