package cost

import (
	"sync"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/model"
)

// Rate is the per-1K-token cost for a model.
type Rate struct {
	PromptRate     float64
	CompletionRate float64
}

// Registry holds a modelKey -> Rate mapping. modelKey is
// "<provider>/<model>". It is optionally seed-locked: once FailOnUnseeded
// is true, recording an unseen model raises an error instead of silently
// treating it as unknown.
type Registry struct {
	mu               sync.RWMutex
	rates            map[string]Rate
	FailOnUnseeded   bool
}

// NewRegistry constructs a Registry from an initial rate table. Pass nil or
// an empty map to start with no seeded rates.
func NewRegistry(seed map[string]Rate, failOnUnseeded bool) *Registry {
	rates := make(map[string]Rate, len(seed))
	for k, v := range seed {
		rates[k] = v
	}
	return &Registry{rates: rates, FailOnUnseeded: failOnUnseeded}
}

// Set installs or replaces the rate for provider/model.
func (r *Registry) Set(provider, model string, rate Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[key(provider, model)] = rate
}

// Lookup returns the rate for provider/model and whether it was found.
func (r *Registry) Lookup(provider, model string) (Rate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.rates[key(provider, model)]
	return rate, ok
}

func key(provider, model string) string { return provider + "/" + model }

// UnknownPricingMode controls PricingResolver.Resolve's behavior when a
// model has no registry entry and the provider didn't report cost.
type UnknownPricingMode string

const (
	UnknownPricingWarn  UnknownPricingMode = "warn"
	UnknownPricingBlock UnknownPricingMode = "block"
)

// Resolver turns provider usage into a {cost, pricingSource} pair per
// spec.md §4.9.
type Resolver struct {
	Registry   *Registry
	Mode       UnknownPricingMode
	Logger     interface {
		Warn(msg string, keyvals ...any)
	}
}

// NewResolver constructs a Resolver. mode defaults to warn when empty.
func NewResolver(registry *Registry, mode UnknownPricingMode) *Resolver {
	if mode == "" {
		mode = UnknownPricingWarn
	}
	return &Resolver{Registry: registry, Mode: mode}
}

// Resolve computes cost and pricingSource for a single provider response.
// Resolution order: (1) the provider reported cost directly -> source
// "provider"; (2) a registry rate exists -> source "registry"; (3) neither
// -> cost 0, source "unknown", and per Mode either warns (returns nil
// error) or blocks (returns a KindUnknownPricing error) before any
// CostEvent is appended.
func (pr *Resolver) Resolve(provider, modelName string, usage model.TokenUsage, resp model.Response) (float64, PricingSource, error) {
	if resp.HasCost {
		return resp.Cost, SourceProvider, nil
	}
	if pr.Registry != nil {
		if rate, ok := pr.Registry.Lookup(provider, modelName); ok {
			cost := float64(usage.PromptTokens)/1000*rate.PromptRate +
				float64(usage.CompletionTokens)/1000*rate.CompletionRate
			return cost, SourceRegistry, nil
		}
		if pr.Registry.FailOnUnseeded {
			return 0, SourceUnknown, enginerr.New(enginerr.KindUnknownPricing,
				"no seeded pricing for "+key(provider, modelName))
		}
	}
	if pr.Mode == UnknownPricingBlock {
		return 0, SourceUnknown, enginerr.New(enginerr.KindUnknownPricing,
			"unknown pricing for "+key(provider, modelName)+" in block mode")
	}
	if pr.Logger != nil {
		pr.Logger.Warn("unknown pricing, recording zero cost", "provider", provider, "model", modelName)
	}
	return 0, SourceUnknown, nil
}
