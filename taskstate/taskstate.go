// Package taskstate defines the Task lifecycle state machine per spec.md
// §4.2: allowed transitions, the terminal set, and retry eligibility.
package taskstate

import "github.com/agentforge/runengine/enginerr"

// Status is the lifecycle state of a Task.
type Status string

const (
	Pending   Status = "PENDING"
	Ready     Status = "READY"
	Running   Status = "RUNNING"
	Blocked   Status = "BLOCKED"
	Done      Status = "DONE"
	Failed    Status = "FAILED"
	Cancelled Status = "CANCELLED"
	Retrying  Status = "RETRYING"
)

var edges = map[Status]map[Status]bool{
	Pending:   {Ready: true, Cancelled: true},
	Ready:     {Running: true, Blocked: true, Cancelled: true},
	Running:   {Done: true, Failed: true, Cancelled: true},
	Failed:    {Retrying: true, Cancelled: true},
	Blocked:   {Ready: true, Cancelled: true},
	Retrying:  {Running: true},
	Done:      {},
	Cancelled: {},
}

var terminal = map[Status]bool{
	Done:      true,
	Cancelled: true,
}

// IsTerminal reports whether s is DONE or CANCELLED.
func IsTerminal(s Status) bool { return terminal[s] }

// CanTransition reports whether the edge from -> to is allowed.
func CanTransition(from, to Status) bool {
	allowed, ok := edges[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Validate returns an *enginerr.Error of KindInvalidTransition when the edge
// from -> to is not allowed; otherwise nil.
func Validate(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return enginerr.New(enginerr.KindInvalidTransition,
		"task cannot transition from "+string(from)+" to "+string(to))
}

// CanRetry reports whether a task currently FAILED with retryCount <
// maxRetries is eligible for another attempt, per spec.md §4.2.
func CanRetry(status Status, retryCount, maxRetries int) bool {
	return status == Failed && retryCount < maxRetries
}
