package llm_test

import (
	"context"
	"testing"

	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/llm"
	"github.com/agentforge/runengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	resp model.Response
	err  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) GenerateText(context.Context, model.Request) (model.Response, error) {
	return f.resp, f.err
}
func (f *fakeProvider) GenerateStructured(context.Context, model.Request) (model.Response, error) {
	return f.resp, f.err
}
func (f *fakeProvider) CreateChatStream(context.Context, model.Request) (model.Streamer, error) {
	return nil, f.err
}

func TestGateway_GenerateText_RecordsCost(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", resp: model.Response{
		Text:  "hello",
		Usage: model.TokenUsage{PromptTokens: 100, CompletionTokens: 50},
	}}
	ledger := cost.NewInmemLedger()
	registry := cost.NewRegistry(map[string]cost.Rate{
		"anthropic/claude-3": {PromptRate: 0.01, CompletionRate: 0.02},
	}, false)
	resolver := cost.NewResolver(registry, cost.UnknownPricingWarn)
	mgr := budget.NewManager(budget.Config{MaxCostPerRun: 10}, ledger)

	gw := llm.NewGateway([]model.Provider{provider}, ledger, mgr, resolver)

	req := model.Request{RunID: "run-1", Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}}}
	call, err := gw.GenerateText(context.Background(), req, "session-1", "anthropic", "claude-3")
	require.NoError(t, err)
	assert.Equal(t, "hello", call.Response.Text)

	agg, err := ledger.Aggregate(context.Background(), "run-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.1*0.01+0.05*0.02, agg.TotalCost, 1e-9)
	assert.Equal(t, 1, agg.EventCount)
	assert.InDelta(t, agg.TotalCost, mgr.RunTotal("run-1"), 1e-9)
}

func TestGateway_RejectsPartialOverride(t *testing.T) {
	provider := &fakeProvider{name: "anthropic"}
	ledger := cost.NewInmemLedger()
	resolver := cost.NewResolver(cost.NewRegistry(nil, false), cost.UnknownPricingWarn)
	mgr := budget.NewManager(budget.Config{}, ledger)
	gw := llm.NewGateway([]model.Provider{provider}, ledger, mgr, resolver)

	req := model.Request{RunID: "run-1", Provider: "anthropic"} // Model left empty
	_, err := gw.GenerateText(context.Background(), req, "", "anthropic", "claude-3")
	assert.Error(t, err)
}

func TestGateway_BlocksOverBudgetBeforeProviderCall(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", resp: model.Response{Usage: model.TokenUsage{PromptTokens: 1000}}}
	ledger := cost.NewInmemLedger()
	registry := cost.NewRegistry(map[string]cost.Rate{"anthropic/claude-3": {PromptRate: 100}}, false)
	resolver := cost.NewResolver(registry, cost.UnknownPricingWarn)
	mgr := budget.NewManager(budget.Config{MaxCostPerRun: 1}, ledger)
	mgr.Record("run-1", "", 5) // already over budget

	gw := llm.NewGateway([]model.Provider{provider}, ledger, mgr, resolver)
	req := model.Request{RunID: "run-1"}
	_, err := gw.GenerateText(context.Background(), req, "", "anthropic", "claude-3")
	require.Error(t, err)

	agg, err := ledger.Aggregate(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.EventCount, "no cost event should be appended when the budget gate rejects the call")
}

func TestGateway_UnknownProvider(t *testing.T) {
	ledger := cost.NewInmemLedger()
	resolver := cost.NewResolver(cost.NewRegistry(nil, false), cost.UnknownPricingWarn)
	mgr := budget.NewManager(budget.Config{}, ledger)
	gw := llm.NewGateway(nil, ledger, mgr, resolver)

	_, err := gw.GenerateText(context.Background(), model.Request{RunID: "run-1"}, "", "nonexistent", "m")
	assert.Error(t, err)
}
