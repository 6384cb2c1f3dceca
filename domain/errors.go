package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskLocked is returned when a completed task is picked up.
	ErrTaskLocked = errors.New("task is finalized and cannot be moved")
	// ErrTaskNotFound is returned when no task in the store matches an id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotInColumn is returned when a drag names the wrong source column.
	ErrTaskNotInColumn = errors.New("task is not in the given column")
	// ErrNoPendingMove is returned by a drop without a preceding drag.
	ErrNoPendingMove = errors.New("no task is being dragged")
	// ErrDecisionPending is returned while the final decision dialog is open.
	ErrDecisionPending = errors.New("a final decision is pending")
	// ErrNoDecisionPending is returned by approve/reject without an open dialog.
	ErrNoDecisionPending = errors.New("no final decision is pending")
	// ErrDecisionInFlight is returned when a decision is submitted twice.
	ErrDecisionInFlight = errors.New("final decision already submitted")
	// ErrUnknownColumn is returned when a drop names a column that is not on
	// the board.
	ErrUnknownColumn = errors.New("unknown column")
)

// ApplicationLockedError reports that the backend refused a change because
// the application was already finally approved.
type ApplicationLockedError struct {
	ApplicationID string
	Message       string
}

func (e *ApplicationLockedError) Error() string {
	if e.ApplicationID == "" {
		return fmt.Sprintf("application locked: %s", e.Message)
	}
	return fmt.Sprintf("application %s locked: %s", e.ApplicationID, e.Message)
}

// IsApplicationLocked reports whether err wraps an ApplicationLockedError.
func IsApplicationLocked(err error) bool {
	var locked *ApplicationLockedError
	return errors.As(err, &locked)
}
