package cost

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const epsilon = 1e-9

// genEvent generates a plausible single-run Event; RunID is held fixed by
// the caller so every generated event belongs to the same aggregate.
func genEvent() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 1000),
		gen.IntRange(0, 100000),
		gen.IntRange(0, 100000),
		gen.OneConstOf("anthropic", "openai", "bedrock"),
		gen.OneConstOf("claude-sonnet-4-5", "gpt-4o", "claude-3-5-sonnet"),
	).Map(func(vs []interface{}) Event {
		return Event{
			Cost:             vs[0].(float64),
			PromptTokens:     vs[1].(int),
			CompletionTokens: vs[2].(int),
			Provider:         vs[3].(string),
			Model:            vs[4].(string),
		}
	})
}

// TestProperty_LedgerAdditivity verifies P3: Aggregate(runID).TotalCost and
// .TotalTokens always equal the sum over every appended event belonging to
// that run, regardless of how many unrelated events (other runs) are
// interleaved into the same ledger.
func TestProperty_LedgerAdditivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate sums exactly match appended events for the run", prop.ForAll(
		func(ownEvents, otherEvents []Event) bool {
			ledger := NewInmemLedger()
			ctx := context.Background()
			const runID = "run-under-test"
			const otherRunID = "some-other-run"

			var wantCost float64
			var wantTokens int
			for _, e := range ownEvents {
				e.RunID = runID
				if _, err := ledger.Append(ctx, e); err != nil {
					return false
				}
				wantCost += e.Cost
				wantTokens += e.PromptTokens + e.CompletionTokens
			}
			for _, e := range otherEvents {
				e.RunID = otherRunID
				if _, err := ledger.Append(ctx, e); err != nil {
					return false
				}
			}

			agg, err := ledger.Aggregate(ctx, runID)
			if err != nil {
				return false
			}
			if agg.EventCount != len(ownEvents) {
				return false
			}
			if math.Abs(agg.TotalCost-wantCost) > epsilon {
				return false
			}
			return agg.TotalTokens == wantTokens
		},
		gen.SliceOfN(5, genEvent()),
		gen.SliceOfN(5, genEvent()),
	))

	properties.TestingRun(t)
}
