package budget

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentforge/runengine/cost"
	"github.com/agentforge/runengine/enginerr"
)

func kindOf(err error) enginerr.Kind {
	var e *enginerr.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// TestProperty_BudgetPreflight verifies P4: CheckBeforeCall rejects a call
// if and only if applying estimatedCost to the run's (or session's) current
// total would cross the configured cap, regardless of call order, and never
// rejects when the corresponding cap is zero (uncapped).
func TestProperty_BudgetPreflight(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("run cap is enforced exactly at the boundary", prop.ForAll(
		func(maxCostPerRun, priorSpend, estimatedCost float64) bool {
			m := NewManager(Config{MaxCostPerRun: maxCostPerRun}, cost.NewInmemLedger())
			m.Record("run-1", "", priorSpend)
			err := m.CheckBeforeCall("run-1", "", estimatedCost)
			wantReject := maxCostPerRun > 0 && priorSpend+estimatedCost > maxCostPerRun
			if wantReject {
				return err != nil && kindOf(err) == enginerr.KindBudgetExceeded
			}
			return err == nil
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Float64Range(0, 100),
	))

	properties.Property("session cap is enforced independently of run cap", prop.ForAll(
		func(maxCostPerSession, priorSpend, estimatedCost float64) bool {
			m := NewManager(Config{MaxCostPerSession: maxCostPerSession}, cost.NewInmemLedger())
			m.Record("run-1", "session-1", priorSpend)
			err := m.CheckBeforeCall("run-1", "session-1", estimatedCost)
			wantReject := maxCostPerSession > 0 && priorSpend+estimatedCost > maxCostPerSession
			if wantReject {
				return err != nil && kindOf(err) == enginerr.KindSessionBudget
			}
			return err == nil
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Float64Range(0, 100),
	))

	properties.Property("zero cap never rejects", prop.ForAll(
		func(priorSpend, estimatedCost float64) bool {
			m := NewManager(Config{}, cost.NewInmemLedger())
			m.Record("run-1", "session-1", priorSpend)
			return m.CheckBeforeCall("run-1", "session-1", estimatedCost) == nil
		},
		gen.Float64Range(0, 1000), gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}
