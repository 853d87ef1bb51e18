// Package task defines the Task entity: identity, typed dependencies,
// input/output/error payloads, retry bookkeeping, and the state-machine
// transition applied under the RuntimeHost's per-run critical section.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/agentforge/runengine/taskstate"
)

// Type identifies the kind of side effect a Task performs.
type Type string

const (
	TypeAnalyze Type = "analyze"
	TypeEdit    Type = "edit"
	TypeTest    Type = "test"
	TypeReview  Type = "review"
	TypeGit     Type = "git"
	TypeShell   Type = "shell"
)

// DefaultMaxRetries is applied to tasks that don't specify one explicitly.
const DefaultMaxRetries = 3

type (
	// Input describes the work a task must perform.
	Input struct {
		Description    string
		ExpectedOutput string
	}

	// Output captures a task's successful result.
	Output struct {
		Content  string
		Metadata map[string]any
	}

	// Error captures a task's failure.
	Error struct {
		Message string
		Code    string
	}

	// Task is the mutable entity. Dependencies is an ordered sequence of
	// sibling task IDs within the same run (spec.md I2: no self-reference,
	// acyclic).
	Task struct {
		ID           string
		RunID        string
		Type         Type
		Status       taskstate.Status
		Dependencies []string
		Input        Input
		Output       Output
		Err          Error
		RetryCount   int
		MaxRetries   int
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Store persists Task entities, scoped by RunID.
	Store interface {
		Create(ctx context.Context, t *Task) error
		Get(ctx context.Context, runID, taskID string) (*Task, error)
		Update(ctx context.Context, t *Task) error
		ListByRun(ctx context.Context, runID string) ([]*Task, error)
	}
)

// ErrNotFound indicates no Task record exists for the given identifiers.
var ErrNotFound = errors.New("task: not found")

// New constructs a Task in the initial PENDING state with DefaultMaxRetries
// unless maxRetries is positive.
func New(runID, id string, typ Type, deps []string, input Input, maxRetries int) *Task {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	now := time.Now()
	return &Task{
		ID:           id,
		RunID:        runID,
		Type:         typ,
		Status:       taskstate.Pending,
		Dependencies: deps,
		Input:        input,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Transition validates and applies a state change.
func (t *Task) Transition(to taskstate.Status) error {
	if err := taskstate.Validate(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

// CanRetry reports whether this task is eligible for another attempt.
func (t *Task) CanRetry() bool {
	return taskstate.CanRetry(t.Status, t.RetryCount, t.MaxRetries)
}
