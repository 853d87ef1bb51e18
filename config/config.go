// Package config loads the run engine's process configuration from
// environment variables (with .env support for local development),
// grounded on the teacher pack's divinesense cmd/divinesense/main.go +
// internal/profile/profile.go pattern: viper binds defaults and env vars,
// godotenv.Load populates the process environment before viper reads it,
// and a flat struct exposes the resolved values to callers.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/cost"
)

// ProviderCredentials bundles the API key/endpoint bag for one LLM
// provider.
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
	Region  string
}

// Config is the resolved process configuration.
type Config struct {
	// Budget
	MaxRunBudget     float64
	MaxSessionBudget float64

	// Pricing
	UnknownPricingMode     cost.UnknownPricingMode
	FailOnUnseededPricing  bool

	DefaultProvider string
	DefaultModel    string

	// PricingFile, if set, is a YAML rate table path PricingRegistry seeds
	// from at startup (SPEC_FULL.md §4.9), overlaid on the built-in defaults
	// with the file's entries taking precedence.
	PricingFile string

	// SessionCostRedisURL, if set, fronts BudgetManager.LoadSessionCosts
	// with a shared Redis cache (SPEC_FULL.md §4.10). Empty disables it.
	SessionCostRedisURL string
	SessionCostCacheTTL time.Duration

	Anthropic ProviderCredentials
	OpenAI    ProviderCredentials
	Bedrock   ProviderCredentials

	// Non-functional wiring
	LogLevel        string
	OTELEndpoint    string
	StorageBackend  string // "bbolt" or "mongo"
	StoragePath     string // bbolt file path
	MongoURI        string
	MongoDatabase   string
	ListenAddress   string
	RequestTimeout  time.Duration
}

// Load reads process configuration from the environment, loading a local
// .env file first when present. Flags are intentionally not bound here;
// cmd/enginectl's cobra command binds its own flags into the same viper
// instance before calling Load, mirroring the teacher's
// PersistentPreRunE + init() split between flag registration and config
// resolution.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.GetViper()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max_run_budget", 0.0)
	v.SetDefault("max_session_budget", 0.0)
	v.SetDefault("cost_unknown_pricing_mode", string(cost.UnknownPricingWarn))
	v.SetDefault("cost_fail_on_unseeded_pricing", false)
	v.SetDefault("default_provider", "anthropic")
	v.SetDefault("default_model", "")
	v.SetDefault("pricing_file", "")
	v.SetDefault("session_cost_redis_url", "")
	v.SetDefault("session_cost_cache_ttl_seconds", 3600)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("storage_backend", "bbolt")
	v.SetDefault("storage_path", "runengine.db")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "runengine")
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("request_timeout_seconds", 120)

	cfg := Config{
		MaxRunBudget:          v.GetFloat64("max_run_budget"),
		MaxSessionBudget:      v.GetFloat64("max_session_budget"),
		UnknownPricingMode:    cost.UnknownPricingMode(v.GetString("cost_unknown_pricing_mode")),
		FailOnUnseededPricing: v.GetBool("cost_fail_on_unseeded_pricing"),
		DefaultProvider:       v.GetString("default_provider"),
		DefaultModel:          v.GetString("default_model"),
		PricingFile:           v.GetString("pricing_file"),
		SessionCostRedisURL:   v.GetString("session_cost_redis_url"),
		SessionCostCacheTTL:   time.Duration(v.GetInt("session_cost_cache_ttl_seconds")) * time.Second,
		Anthropic: ProviderCredentials{
			APIKey:  v.GetString("anthropic_api_key"),
			BaseURL: v.GetString("anthropic_base_url"),
		},
		OpenAI: ProviderCredentials{
			APIKey:  v.GetString("openai_api_key"),
			BaseURL: v.GetString("openai_base_url"),
		},
		Bedrock: ProviderCredentials{
			Region: v.GetString("aws_region"),
		},
		LogLevel:       v.GetString("log_level"),
		OTELEndpoint:   v.GetString("otel_endpoint"),
		StorageBackend: v.GetString("storage_backend"),
		StoragePath:    v.GetString("storage_path"),
		MongoURI:       v.GetString("mongo_uri"),
		MongoDatabase:  v.GetString("mongo_database"),
		ListenAddress:  v.GetString("listen_address"),
		RequestTimeout: time.Duration(v.GetInt("request_timeout_seconds")) * time.Second,
	}
	return cfg, nil
}

// BudgetConfig projects Config into the budget.Manager's Config shape.
func (c Config) BudgetConfig() budget.Config {
	return budget.Config{
		MaxCostPerRun:     c.MaxRunBudget,
		MaxCostPerSession: c.MaxSessionBudget,
	}
}
