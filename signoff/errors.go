package signoff

import (
	"fmt"
)

// WorkflowError is used for workflow sentinel errors.
type WorkflowError string

func (err WorkflowError) Error() string {
	return string(err)
}

// Workflow sentinel errors.
const (
	// ErrNotConfigured is returned when a transition is attempted on a
	// collection that has no matching sign-off resource. Snapshot
	// resolution signals the same condition as a nil snapshot instead,
	// since merely viewing an unconfigured collection is not an error.
	ErrNotConfigured WorkflowError = "collection is not configured for review"
)

// TransitionError is returned when the collection status doesn't permit
// the requested action.
type TransitionError struct {
	Action string
	From   Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while the collection is %s",
		e.Action, e.From)
}

// ForbiddenError is returned when the acting principal fails a transition
// guard. This is checked before any write is attempted.
type ForbiddenError struct {
	Action string
	Actor  string
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s may not %s: %s", e.Actor, e.Action, e.Reason)
}
