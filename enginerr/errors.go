// Package enginerr defines the closed error taxonomy shared across the run
// engine. Errors carry a stable Kind so boundary code (HTTP handlers, the
// scheduler, the gateway) can classify failures without string matching.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error in the taxonomy. Kinds are stable and
// intended for programmatic dispatch (HTTP status mapping, retry decisions).
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindPolicy             Kind = "policy_error"
	KindParse              Kind = "parse_error"
	KindNotFound           Kind = "not_found"
	KindAuthFailed         Kind = "auth_failed"
	KindBudgetExceeded     Kind = "budget_exceeded"
	KindSessionBudget      Kind = "session_budget_exceeded"
	KindDependency         Kind = "dependency_error"
	KindProvider           Kind = "provider_error"
	KindInvalidTransition  Kind = "invalid_state_transition"
	KindScheduler          Kind = "scheduler_error"
	KindUnknownPricing     Kind = "unknown_pricing"
)

// Error is the concrete error type for every engine-raised failure. Callers
// should use errors.As to recover it and inspect Kind, Retryable, and
// HTTPStatus.
type Error struct {
	Kind    Kind
	Message string
	// Cause wraps an underlying error when one exists, preserving
	// errors.Is/errors.As chains.
	Cause error
	// ProviderCode carries a provider-specific subcode for KindProvider
	// errors (e.g. "RATE_LIMITED", "AUTH_FAILED").
	ProviderCode string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the scheduler should retry a task that failed
// with this error, per the taxonomy table in spec.md §7.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindDependency:
		return true
	case KindProvider:
		return e.ProviderCode == "RATE_LIMITED"
	default:
		return false
	}
}

// HTTPStatus maps the error Kind to the HTTP status code the transport layer
// should surface at the request boundary.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindPolicy, KindParse:
		return 400
	case KindNotFound:
		return 404
	case KindAuthFailed:
		return 401
	case KindBudgetExceeded:
		return 402
	case KindSessionBudget:
		return 429
	case KindDependency:
		return 503
	case KindProvider:
		if e.ProviderCode == "RATE_LIMITED" {
			return 429
		}
		return 502
	case KindInvalidTransition, KindScheduler, KindUnknownPricing:
		return 500
	default:
		return 500
	}
}

// New constructs an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is supports errors.Is comparisons between *Error values based on Kind,
// so sentinel-style checks (errors.Is(err, enginerr.New(KindNotFound, ""))
// are unnecessary; callers should prefer errors.As + Kind comparison, but
// Is is provided for ergonomic switch-free checks against a zero-value
// Error of a given Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}
