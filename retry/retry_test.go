package retry_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runengine/retry"
)

func TestNew_RejectsInvalidBounds(t *testing.T) {
	_, err := retry.New(-1, time.Second, 2)
	assert.Error(t, err)

	_, err = retry.New(3, -time.Second, 2)
	assert.Error(t, err)

	_, err = retry.New(3, time.Second, 0.5)
	assert.Error(t, err)
}

func TestDefault_IsSpecDefault(t *testing.T) {
	p := retry.Default()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 4, p.MaxAttempts())
}

func TestDelay_MatchesExponentialFormula(t *testing.T) {
	p, err := retry.New(5, time.Second, 2)
	require.NoError(t, err)

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
}

func TestMaxAttempts_IsOnePlusMaxRetries(t *testing.T) {
	p, err := retry.New(0, time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxAttempts())
}

// TestProperty_DelayFormula verifies Delay always computes
// base*multiplier^(n-1) for attempt>=1, per spec.md §4.5.
func TestProperty_DelayFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("Delay(n) == base * multiplier^(n-1)", prop.ForAll(
		func(baseMillis int, multiplier float64, attempt int) bool {
			base := time.Duration(baseMillis) * time.Millisecond
			p, err := retry.New(10, base, multiplier)
			if err != nil {
				return false
			}
			want := time.Duration(float64(base) * pow(multiplier, attempt-1))
			return p.Delay(attempt) == want
		},
		gen.IntRange(0, 5000),
		gen.Float64Range(1, 5),
		gen.IntRange(1, 6),
	))

	properties.Property("Delay never decreases as attempt increases, for multiplier >= 1", prop.ForAll(
		func(baseMillis int, multiplier float64, attempt int) bool {
			base := time.Duration(baseMillis) * time.Millisecond
			p, err := retry.New(10, base, multiplier)
			if err != nil {
				return false
			}
			return p.Delay(attempt+1) >= p.Delay(attempt)
		},
		gen.IntRange(0, 5000),
		gen.Float64Range(1, 5),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
