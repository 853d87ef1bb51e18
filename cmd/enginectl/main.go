// Command enginectl wires the run engine's components into a process and
// serves spec.md §6's single execute endpoint, grounded on the teacher
// pack's cmd/divinesense/main.go: a cobra root command with
// PersistentPreRunE loading .env/viper before Run, and signal-driven
// graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentforge/runengine/agent"
	"github.com/agentforge/runengine/agent/coding"
	"github.com/agentforge/runengine/agent/review"
	"github.com/agentforge/runengine/budget"
	"github.com/agentforge/runengine/budget/rediscache"
	"github.com/agentforge/runengine/config"
	"github.com/agentforge/runengine/cost"
	costmongo "github.com/agentforge/runengine/cost/mongo"
	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/host"
	"github.com/agentforge/runengine/llm"
	"github.com/agentforge/runengine/llmproviders/anthropic"
	"github.com/agentforge/runengine/llmproviders/bedrock"
	"github.com/agentforge/runengine/llmproviders/openai"
	"github.com/agentforge/runengine/model"
	"github.com/agentforge/runengine/orchestrator"
	"github.com/agentforge/runengine/planner"
	"github.com/agentforge/runengine/recovery"
	"github.com/agentforge/runengine/run"
	runinmem "github.com/agentforge/runengine/run/inmem"
	"github.com/agentforge/runengine/sandbox/fake"
	"github.com/agentforge/runengine/scheduler"
	"github.com/agentforge/runengine/store/kv"
	"github.com/agentforge/runengine/store/kv/bbolt"
	kvmongo "github.com/agentforge/runengine/store/kv/mongo"
	"github.com/agentforge/runengine/task"
	taskinmem "github.com/agentforge/runengine/task/inmem"
	"github.com/agentforge/runengine/telemetry"
	transporthttp "github.com/agentforge/runengine/transport/http"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
)

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Durable agent execution engine: plans, schedules, and runs agent tasks under cost budgets.",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().String("listen-address", "", "address to listen on (overrides LISTEN_ADDRESS)")
	rootCmd.PersistentFlags().String("storage-backend", "", "storage backend: bbolt or mongo (overrides STORAGE_BACKEND)")
	_ = viper.BindPFlag("listen_address", rootCmd.PersistentFlags().Lookup("listen-address"))
	_ = viper.BindPFlag("storage_backend", rootCmd.PersistentFlags().Lookup("storage-backend"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("enginectl exited with error", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	kvStore, runs, tasks, costLedger, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	rates, err := loadPricingRates(cfg)
	if err != nil {
		return fmt.Errorf("load pricing rates: %w", err)
	}
	registry := cost.NewRegistry(rates, cfg.FailOnUnseededPricing)
	resolver := cost.NewResolver(registry, cfg.UnknownPricingMode)

	var budgetOpts []budget.Option
	if cfg.SessionCostRedisURL != "" {
		sessionCache, err := rediscache.New(cfg.SessionCostRedisURL, cfg.SessionCostCacheTTL)
		if err != nil {
			return fmt.Errorf("connect session cost cache: %w", err)
		}
		budgetOpts = append(budgetOpts, budget.WithSessionCache(sessionCache))
	}
	bm := budget.NewManager(cfg.BudgetConfig(), costLedger, budgetOpts...)
	gateway := llm.NewGateway(providers, costLedger, bm, resolver, llm.WithLogger(logger))

	agents, err := buildAgents(gateway, cfg)
	if err != nil {
		return fmt.Errorf("build agents: %w", err)
	}

	sched := scheduler.New(tasks, agentExecutor{agents})
	rec := recovery.New(runs, tasks)
	engine := orchestrator.New(runs, tasks, agents, sched, rec, bm, orchestrator.WithLogger(logger))
	h := host.New(kvStore, engine)
	server := transporthttp.New(h, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info(ctx, "enginectl listening", "addr", cfg.ListenAddress, "storage", cfg.StorageBackend)
	return server.ListenAndServe(ctx, cfg.ListenAddress)
}

// agentExecutor bridges agent.Registry into scheduler.Executor. Since Run
// isn't threaded through scheduler.Executor's signature, it always resolves
// the coding agent: the owning Run's AgentType is not consulted, so tasks
// of a review or CI run are also executed by the coding agent.
type agentExecutor struct {
	agents *agent.Registry
}

func (e agentExecutor) Execute(ctx context.Context, t *task.Task) (task.Output, error) {
	a, err := e.agents.Resolve(run.AgentCoding)
	if err != nil {
		return task.Output{}, err
	}
	return a.ExecuteTask(ctx, t)
}

// defaultPricingRates gives the registry a starting rate table for the
// models this deployment ships providers for; operators extend it via
// Registry.Set for models introduced after launch, or overlay a YAML file on
// it, whose entries win per model key (see loadPricingRates).
func defaultPricingRates() map[string]cost.Rate {
	return map[string]cost.Rate{
		"anthropic/claude-sonnet-4-5": {PromptRate: 0.003, CompletionRate: 0.015},
		"openai/gpt-4o":               {PromptRate: 0.0025, CompletionRate: 0.01},
		"bedrock/anthropic.claude-3-5-sonnet-20241022-v2:0": {PromptRate: 0.003, CompletionRate: 0.015},
	}
}

// loadPricingRates returns defaultPricingRates, overlaid with cfg.PricingFile
// (SPEC_FULL.md §4.9's YAML rate table) when one is configured; entries in
// the file take precedence over the built-in defaults for the same model
// key.
func loadPricingRates(cfg config.Config) (map[string]cost.Rate, error) {
	rates := defaultPricingRates()
	if cfg.PricingFile == "" {
		return rates, nil
	}
	fromFile, err := cost.LoadRatesFromYAML(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFile {
		rates[k] = v
	}
	return rates, nil
}

func buildStorage(ctx context.Context, cfg config.Config) (kv.Store, run.Store, task.Store, cost.Ledger, error) {
	runs := runinmem.New()
	tasks := taskinmem.New()

	switch cfg.StorageBackend {
	case "mongo":
		client, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, nil, nil, enginerr.Wrap(enginerr.KindDependency, "connect to mongo", err)
		}
		kvStore, err := kvmongo.New(kvmongo.Options{Client: client, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ledger, err := costmongo.New(ctx, costmongo.Options{Client: client, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return kvStore, runs, tasks, ledger, nil
	default:
		kvStore, err := bbolt.Open(cfg.StoragePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return kvStore, runs, tasks, cost.NewInmemLedger(), nil
	}
}

func buildProviders(ctx context.Context, cfg config.Config) ([]model.Provider, error) {
	var providers []model.Provider
	if cfg.Anthropic.APIKey != "" {
		p, err := anthropic.NewFromAPIKey(cfg.Anthropic.APIKey, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.OpenAI.APIKey != "" {
		p, err := openai.NewFromAPIKey(cfg.OpenAI.APIKey, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.Bedrock.Region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
		if err != nil {
			return nil, enginerr.Wrap(enginerr.KindDependency, "load aws config", err)
		}
		p, err := bedrock.New(bedrock.Options{
			Runtime:      bedrockruntime.NewFromConfig(awsCfg),
			DefaultModel: cfg.DefaultModel,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, enginerr.New(enginerr.KindValidation, "no LLM provider credentials configured")
	}
	return providers, nil
}

func buildAgents(gateway *llm.Gateway, cfg config.Config) (*agent.Registry, error) {
	p, err := planner.New(gateway, cfg.DefaultProvider, cfg.DefaultModel)
	if err != nil {
		return nil, err
	}
	// The real filesystem/shell/git sandbox is an external collaborator
	// (spec.md §1); this binary wires the in-memory fake so enginectl runs
	// standalone until a concrete sandbox implementation is supplied.
	sb := fake.New()

	registry := agent.NewRegistry()
	registry.Register(run.AgentCoding, coding.New(p, sb, gateway, cfg.DefaultProvider, cfg.DefaultModel))
	registry.Register(run.AgentReview, review.New(p, sb, gateway, cfg.DefaultProvider, cfg.DefaultModel))
	return registry, nil
}
