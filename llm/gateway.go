// Package llm implements the LLMGateway: a budget- and pricing-aware
// wrapper around a model.Provider, per spec.md §4.11. Every model call
// flows through the Gateway and lands in the cost.Ledger.
package llm

import (
	"context"

	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/model"
	"github.com/agentforge/runengine/telemetry"
	"golang.org/x/time/rate"
)

// Call bundles the result of a gateway invocation with the usage and
// optional provider request ID, mirroring the shape every call path
// (unary and streaming) converges on per spec.md §9 ("uniform task returns
// a Result + usage record").
type Call struct {
	Response          model.Response
	ProviderRequestID string
}

// BudgetGate is the subset of budget.Manager the Gateway depends on,
// narrowed to ease testing with fakes.
type BudgetGate interface {
	CheckBeforeCall(runID, sessionID string, estimatedCost float64) error
	Record(runID, sessionID string, actualCost float64)
}

// Estimator computes a cheap up-front cost estimate for a request, used by
// CheckBeforeCall. The zero Estimator always estimates zero, which still
// gates calls on a run that has already exceeded its budget (spec.md
// §4.10: "Estimated cost may be zero; the check still prevents starting a
// call on an already-overspent run").
type Estimator func(req model.Request) float64

// Gateway wraps a set of named model.Provider implementations, enforcing
// budget and recording cost for every call.
type Gateway struct {
	providers map[string]model.Provider
	ledger    cost.Ledger
	budget    BudgetGate
	resolver  *cost.Resolver
	estimate  Estimator
	logger    telemetry.Logger
	// limiter paces outbound calls independent of the dollar budget (a
	// client-side rate guard, not a cost control; see SPEC_FULL.md §4.11).
	limiter *rate.Limiter
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithEstimator overrides the default zero-cost Estimator.
func WithEstimator(e Estimator) Option { return func(g *Gateway) { g.estimate = e } }

// WithLogger attaches a telemetry.Logger.
func WithLogger(l telemetry.Logger) Option { return func(g *Gateway) { g.logger = l } }

// WithRateLimiter attaches a client-side call-pacing guard.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(g *Gateway) { g.limiter = limiter }
}

// NewGateway constructs a Gateway over the given providers (keyed by
// model.Provider.Name()), ledger, budget manager, and pricing resolver.
func NewGateway(providers []model.Provider, ledger cost.Ledger, budget BudgetGate, resolver *cost.Resolver, opts ...Option) *Gateway {
	byName := make(map[string]model.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	g := &Gateway{
		providers: byName,
		ledger:    ledger,
		budget:    budget,
		resolver:  resolver,
		estimate:  func(model.Request) float64 { return 0 },
		logger:    telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// resolveTarget selects the provider for req. Per spec.md §4.11 step 1, an
// explicit {providerID, modelID} override must supply both or neither.
func (g *Gateway) resolveTarget(req model.Request, defaultProvider, defaultModel string) (model.Provider, string, error) {
	providerID, modelID := req.Provider, req.Model
	if (providerID == "") != (modelID == "") {
		return nil, "", enginerr.New(enginerr.KindPolicy, "provider/model override must specify both or neither")
	}
	if providerID == "" {
		providerID, modelID = defaultProvider, defaultModel
	}
	p, ok := g.providers[providerID]
	if !ok {
		return nil, "", enginerr.New(enginerr.KindValidation, "unknown provider "+providerID)
	}
	return p, modelID, nil
}

// GenerateText performs a non-streaming text completion through the
// budget/pricing pipeline.
func (g *Gateway) GenerateText(ctx context.Context, req model.Request, sessionID, defaultProvider, defaultModel string) (Call, error) {
	return g.call(ctx, req, sessionID, defaultProvider, defaultModel, func(p model.Provider, r model.Request) (model.Response, error) {
		return p.GenerateText(ctx, r)
	})
}

// GenerateStructured performs a non-streaming structured/JSON completion
// through the budget/pricing pipeline.
func (g *Gateway) GenerateStructured(ctx context.Context, req model.Request, sessionID, defaultProvider, defaultModel string) (Call, error) {
	return g.call(ctx, req, sessionID, defaultProvider, defaultModel, func(p model.Provider, r model.Request) (model.Response, error) {
		return p.GenerateStructured(ctx, r)
	})
}

// call implements the seven-step pipeline of spec.md §4.11: resolve target,
// estimate, preflight-check budget, delegate to provider, resolve pricing,
// append the CostEvent, return the result. Steps 3-6 are atomic: either an
// event is recorded and the result returned, or no event is recorded and
// the caller sees an error (spec.md "Budget checks and cost recording must
// be atomic w.r.t. a single call").
func (g *Gateway) call(ctx context.Context, req model.Request, sessionID, defaultProvider, defaultModel string,
	invoke func(model.Provider, model.Request) (model.Response, error)) (Call, error) {

	provider, modelID, err := g.resolveTarget(req, defaultProvider, defaultModel)
	if err != nil {
		return Call{}, err
	}
	req.Model = modelID

	estimated := g.estimate(req)
	if err := g.budget.CheckBeforeCall(req.RunID, sessionID, estimated); err != nil {
		return Call{}, err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Call{}, enginerr.Wrap(enginerr.KindDependency, "rate limiter wait failed", err)
		}
	}

	resp, err := invoke(provider, req)
	if err != nil {
		return Call{}, enginerr.Wrap(enginerr.KindProvider, "provider call failed", err)
	}

	actualCost, source, err := g.resolver.Resolve(provider.Name(), modelID, resp.Usage, resp)
	if err != nil {
		return Call{}, err
	}

	event := cost.Event{
		RunID:            req.RunID,
		SessionID:        sessionID,
		Provider:         provider.Name(),
		Model:            modelID,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Cost:             actualCost,
		PricingSource:    source,
	}
	if _, err := g.ledger.Append(ctx, event); err != nil {
		return Call{}, enginerr.Wrap(enginerr.KindDependency, "failed to append cost event", err)
	}
	g.budget.Record(req.RunID, sessionID, actualCost)

	return Call{Response: resp}, nil
}

// CreateChatStream performs a streaming completion. Budget is checked
// before the stream opens; the final usage/cost reconciliation happens once
// the stream yields its terminal ChunkTypeStop event and is recorded when the
// caller invokes the returned finalize function with the final usage.
func (g *Gateway) CreateChatStream(ctx context.Context, req model.Request, sessionID, defaultProvider, defaultModel string) (model.Streamer, func(model.TokenUsage) error, error) {
	provider, modelID, err := g.resolveTarget(req, defaultProvider, defaultModel)
	if err != nil {
		return nil, nil, err
	}
	req.Model = modelID

	estimated := g.estimate(req)
	if err := g.budget.CheckBeforeCall(req.RunID, sessionID, estimated); err != nil {
		return nil, nil, err
	}

	stream, err := provider.CreateChatStream(ctx, req)
	if err != nil {
		return nil, nil, enginerr.Wrap(enginerr.KindProvider, "provider stream failed", err)
	}

	finalize := func(usage model.TokenUsage) error {
		actualCost, source, rerr := g.resolver.Resolve(provider.Name(), modelID, usage, model.Response{})
		if rerr != nil {
			return rerr
		}
		event := cost.Event{
			RunID:            req.RunID,
			SessionID:        sessionID,
			Provider:         provider.Name(),
			Model:            modelID,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			Cost:             actualCost,
			PricingSource:    source,
		}
		if _, err := g.ledger.Append(ctx, event); err != nil {
			return enginerr.Wrap(enginerr.KindDependency, "failed to append cost event", err)
		}
		g.budget.Record(req.RunID, sessionID, actualCost)
		return nil
	}
	return stream, finalize, nil
}
