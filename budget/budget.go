// Package budget implements per-run and per-session cost caps, gating LLM
// calls before any provider I/O occurs, per spec.md §4.10.
package budget

import (
	"context"
	"sync"

	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/enginerr"
)

// Config holds the optional cost ceilings. A zero value for either field
// means "no cap".
type Config struct {
	MaxCostPerRun     float64
	MaxCostPerSession float64
}

// SessionCache optionally fronts LoadSessionCosts with a shared, faster
// store (SPEC_FULL.md §4.10's Redis-backed cache) so horizontally-scaled
// hosts don't all re-aggregate the full ledger on their own startup. It is
// an optimization only: a cache miss or a nil SessionCache always falls
// back to the ledger, which remains the source of truth.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (total float64, ok bool, err error)
	Set(ctx context.Context, sessionID string, total float64) error
}

// Manager tracks running cost totals and rejects calls that would push a
// run or session over its cap. Session totals are loaded once at startup
// via LoadSessionCosts and kept in memory thereafter, updated incrementally
// as CostEvents are recorded through Record.
type Manager struct {
	cfg    Config
	ledger cost.Ledger
	cache  SessionCache

	mu           sync.Mutex
	runTotals    map[string]float64
	sessionTotal map[string]float64
}

// NewManager constructs a Manager backed by ledger for initial session
// total loading.
func NewManager(cfg Config, ledger cost.Ledger, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		ledger:       ledger,
		runTotals:    make(map[string]float64),
		sessionTotal: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithSessionCache attaches a SessionCache to front LoadSessionCosts.
func WithSessionCache(c SessionCache) Option {
	return func(m *Manager) { m.cache = c }
}

// LoadSessionCosts populates the in-memory session aggregate, preferring a
// cache hit (if a SessionCache is configured) over re-aggregating the full
// ledger, per spec.md "Session totals are loaded asynchronously at
// startup". On a cache miss it falls back to the ledger and writes the
// result back to the cache for the next host to reuse.
func (m *Manager) LoadSessionCosts(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if m.cache != nil {
		if total, ok, err := m.cache.Get(ctx, sessionID); err == nil && ok {
			m.mu.Lock()
			m.sessionTotal[sessionID] = total
			m.mu.Unlock()
			return nil
		}
	}

	agg, err := m.ledger.AggregateSession(ctx, sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessionTotal[sessionID] = agg.TotalCost
	m.mu.Unlock()

	if m.cache != nil {
		_ = m.cache.Set(ctx, sessionID, agg.TotalCost)
	}
	return nil
}

// CheckBeforeCall rejects estimatedCost (which may be zero) if adding it to
// the run's or session's current aggregate would exceed the configured
// cap. The check happens strictly before any provider I/O (spec.md I5).
func (m *Manager) CheckBeforeCall(runID, sessionID string, estimatedCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxCostPerRun > 0 {
		if m.runTotals[runID]+estimatedCost > m.cfg.MaxCostPerRun {
			return enginerr.New(enginerr.KindBudgetExceeded,
				"run "+runID+" would exceed maxCostPerRun")
		}
	}
	if m.cfg.MaxCostPerSession > 0 && sessionID != "" {
		if m.sessionTotal[sessionID]+estimatedCost > m.cfg.MaxCostPerSession {
			return enginerr.New(enginerr.KindSessionBudget,
				"session "+sessionID+" would exceed maxCostPerSession")
		}
	}
	return nil
}

// Record adds an actually-incurred cost to the run and session running
// totals, called by the LLMGateway immediately after a CostEvent is
// appended to the ledger. When a SessionCache is configured it is updated
// write-through, best-effort, so other hosts sharing the cache observe the
// new total without waiting for their own next LoadSessionCosts.
func (m *Manager) Record(runID, sessionID string, actualCost float64) {
	m.mu.Lock()
	m.runTotals[runID] += actualCost
	var newSessionTotal float64
	if sessionID != "" {
		m.sessionTotal[sessionID] += actualCost
		newSessionTotal = m.sessionTotal[sessionID]
	}
	m.mu.Unlock()

	if m.cache != nil && sessionID != "" {
		_ = m.cache.Set(context.Background(), sessionID, newSessionTotal)
	}
}

// RunTotal returns the current known run total, for diagnostics/synthesis
// fallback messaging.
func (m *Manager) RunTotal(runID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runTotals[runID]
}
