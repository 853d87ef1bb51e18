package runstate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allRunStatuses = []Status{Created, Planning, Running, Paused, Completed, Failed, Cancelled}

func genRunStatus() gopter.Gen {
	return gen.OneConstOf(Created, Planning, Running, Paused, Completed, Failed, Cancelled)
}

// TestProperty_StateMachineSafety verifies P1 for Run: Validate agrees with
// CanTransition, and Completed (the one status with no recovery edge) never
// transitions anywhere.
func TestProperty_StateMachineSafety(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Validate returns nil iff CanTransition is true", prop.ForAll(
		func(from, to Status) bool {
			err := Validate(from, to)
			if CanTransition(from, to) {
				return err == nil
			}
			return err != nil
		},
		genRunStatus(), genRunStatus(),
	))

	properties.Property("COMPLETED has no outgoing edges", prop.ForAll(
		func(to Status) bool {
			return !CanTransition(Completed, to)
		},
		genRunStatus(),
	))

	properties.TestingRun(t)
}
