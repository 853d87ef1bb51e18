package coding_test

import (
	"context"
	"testing"

	"github.com/agentforge/runengine/agent/coding"
	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/llm"
	"github.com/agentforge/runengine/model"
	"github.com/agentforge/runengine/sandbox/fake"
	"github.com/agentforge/runengine/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "anthropic" }
func (echoProvider) GenerateText(_ context.Context, req model.Request) (model.Response, error) {
	return model.Response{Text: "reviewed: " + req.Messages[0].Text}, nil
}
func (echoProvider) GenerateStructured(context.Context, model.Request) (model.Response, error) {
	return model.Response{}, nil
}
func (echoProvider) CreateChatStream(context.Context, model.Request) (model.Streamer, error) {
	return nil, nil
}

func newGateway() *llm.Gateway {
	ledger := cost.NewInmemLedger()
	resolver := cost.NewResolver(cost.NewRegistry(nil, false), cost.UnknownPricingWarn)
	mgr := budget.NewManager(budget.Config{}, ledger)
	return llm.NewGateway([]model.Provider{echoProvider{}}, ledger, mgr, resolver)
}

func TestCodingAgent_AnalyzeReadsFile(t *testing.T) {
	sb := fake.New()
	sb.Seed("README.md", "hello world")
	a := coding.New(nil, sb, newGateway(), "anthropic", "claude-3")

	tk := task.New("run-1", "t1", task.TypeAnalyze, nil, task.Input{Description: "README.md"}, 3)
	out, err := a.ExecuteTask(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Content)
}

func TestCodingAgent_EditWritesFile(t *testing.T) {
	sb := fake.New()
	a := coding.New(nil, sb, newGateway(), "anthropic", "claude-3")

	tk := task.New("run-1", "t1", task.TypeEdit, nil, task.Input{Description: "out.txt", ExpectedOutput: "content"}, 3)
	_, err := a.ExecuteTask(context.Background(), tk)
	require.NoError(t, err)

	res, err := sb.ReadFile(context.Background(), "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", res.Output)
}

func TestCodingAgent_ReviewCallsGateway(t *testing.T) {
	sb := fake.New()
	a := coding.New(nil, sb, newGateway(), "anthropic", "claude-3")

	tk := task.New("run-1", "t1", task.TypeReview, nil, task.Input{Description: "look at this"}, 3)
	out, err := a.ExecuteTask(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "reviewed: look at this", out.Content)
}

func TestCodingAgent_UnsupportedType(t *testing.T) {
	sb := fake.New()
	a := coding.New(nil, sb, newGateway(), "anthropic", "claude-3")

	tk := &task.Task{ID: "t1", RunID: "run-1", Type: "bogus"}
	_, err := a.ExecuteTask(context.Background(), tk)
	assert.Error(t, err)
}
