// Package retry implements bounded retries with exponential backoff for
// task execution, per spec.md §4.5.
package retry

import (
	"math"
	"time"

	"github.com/agentforge/runengine/enginerr"
)

// Policy configures retry bounds and backoff shape. Zero-valued Policy is
// invalid; use New to construct one with validation.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Multiplier float64
}

// Default returns the spec's default policy: 3 retries, 1s base delay,
// multiplier 2 (pure exponential backoff).
func Default() Policy {
	p, _ := New(3, time.Second, 2)
	return p
}

// New validates and constructs a Policy. maxRetries<0, base<0, or
// multiplier<1 are rejected at construction per spec.md §4.5.
func New(maxRetries int, base time.Duration, multiplier float64) (Policy, error) {
	if maxRetries < 0 {
		return Policy{}, enginerr.New(enginerr.KindValidation, "maxRetries must be >= 0")
	}
	if base < 0 {
		return Policy{}, enginerr.New(enginerr.KindValidation, "base delay must be >= 0")
	}
	if multiplier < 1 {
		return Policy{}, enginerr.New(enginerr.KindValidation, "multiplier must be >= 1")
	}
	return Policy{MaxRetries: maxRetries, Base: base, Multiplier: multiplier}, nil
}

// Delay computes the backoff delay before retry attempt n (1-indexed):
// base * multiplier^(n-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Base
	}
	factor := math.Pow(p.Multiplier, float64(attempt-1))
	return time.Duration(float64(p.Base) * factor)
}

// MaxAttempts is the total number of executions a task may receive,
// inclusive of the first attempt: 1 + MaxRetries.
func (p Policy) MaxAttempts() int {
	return 1 + p.MaxRetries
}
