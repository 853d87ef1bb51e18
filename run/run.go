// Package run defines the Run entity: identity, status, input/output, and
// the state-machine transition applied under the RuntimeHost's per-run
// critical section. It mirrors the Record/Store split used by the run
// engine's pack: a mutable entity for in-process use and a Store contract
// for persistence.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/agentforge/runengine/runstate"
)

// AgentType identifies which Agent strategy a Run uses.
type AgentType string

const (
	AgentCoding AgentType = "coding"
	AgentReview AgentType = "review"
	AgentCI     AgentType = "ci"
)

type (
	// Input captures the original request that created the Run.
	Input struct {
		Prompt     string
		AgentType  AgentType
		SessionID  string
		ProviderID string
		ModelID    string
	}

	// Metadata carries timestamps, error, and cancellation context.
	Metadata struct {
		CreatedAt           time.Time
		StartedAt           time.Time
		CompletedAt         time.Time
		UpdatedAt           time.Time
		Error               string
		CancellationReason  string
	}

	// Run is the mutable entity. All mutation happens via Transition, which
	// enforces I1 (state-machine safety) and stamps timestamps per spec.md
	// §4.1. Callers outside the owning RuntimeHost should treat Run as
	// read-only; the host is the only component permitted to call
	// Transition outside of tests.
	Run struct {
		ID        string
		SessionID string
		AgentType AgentType
		Status    runstate.Status
		Input     Input
		Output    string
		Metadata  Metadata
	}

	// Store persists Run entities. The implementation in this module,
	// run/inmem, keeps them in process memory.
	Store interface {
		Create(ctx context.Context, r *Run) error
		Get(ctx context.Context, id string) (*Run, error)
		Update(ctx context.Context, r *Run) error
		// ListBySession returns every Run sharing the given SessionID,
		// oldest first.
		ListBySession(ctx context.Context, sessionID string) ([]*Run, error)
	}
)

// ErrNotFound indicates no Run record exists for the given identifier.
var ErrNotFound = errors.New("run: not found")

// New constructs a Run in the initial CREATED state.
func New(id string, input Input) *Run {
	now := time.Now()
	return &Run{
		ID:        id,
		SessionID: input.SessionID,
		AgentType: input.AgentType,
		Status:    runstate.Created,
		Input:     input,
		Metadata:  Metadata{CreatedAt: now, UpdatedAt: now},
	}
}

// Transition validates and applies a state change, stamping StartedAt on
// entry to RUNNING and CompletedAt on entry to any terminal state. Per the
// spec's resolved open question, any transition landing on FAILED sets
// Metadata.Error to errMsg (when non-empty) regardless of which caller
// triggered it.
func (r *Run) Transition(to runstate.Status, errMsg string) error {
	if err := runstate.Validate(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	now := time.Now()
	if to == runstate.Running && r.Metadata.StartedAt.IsZero() {
		r.Metadata.StartedAt = now
	}
	if runstate.IsTerminal(to) {
		r.Metadata.CompletedAt = now
	}
	if to == runstate.Failed && errMsg != "" {
		r.Metadata.Error = errMsg
	}
	r.Metadata.UpdatedAt = now
	return nil
}
