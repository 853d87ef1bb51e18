// Package runstate defines the Run lifecycle state machine: the allowed
// transition edges, the terminal set, and the initial state. It holds no
// entity data; run.Run composes it to validate and apply transitions.
package runstate

import "github.com/agentforge/runengine/enginerr"

// Status is the coarse-grained lifecycle state of a Run.
type Status string

const (
	Created  Status = "CREATED"
	Planning Status = "PLANNING"
	Running  Status = "RUNNING"
	Paused   Status = "PAUSED"
	Completed Status = "COMPLETED"
	Failed   Status = "FAILED"
	Cancelled Status = "CANCELLED"
)

// edges enumerates the allowed transitions per spec.md §4.1.
var edges = map[Status]map[Status]bool{
	Created:   {Planning: true, Cancelled: true},
	Planning:  {Running: true, Failed: true, Cancelled: true},
	Running:   {Completed: true, Failed: true, Cancelled: true, Paused: true},
	Paused:    {Running: true, Cancelled: true},
	Completed: {},
	Failed:    {Running: true},
	Cancelled: {Created: true},
}

// terminal is the set of Run statuses with no further work expected absent
// an operator-initiated restart/retry.
var terminal = map[Status]bool{
	Completed: true,
	Failed:    true,
	Cancelled: true,
}

// IsTerminal reports whether s is a terminal Run status.
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
		"run cannot transition from "+string(from)+" to "+string(to))
}
