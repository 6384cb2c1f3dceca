package domain

import "fmt"

// Status is the backend task status; it decides which column a task renders in.
type Status string

const (
	StatusTodo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusComplete   Status = "Complete"
)

// ColumnID names a board column.
type ColumnID string

const (
	ColumnTodo       ColumnID = "todo"
	ColumnInProgress ColumnID = "inProgress"
	ColumnInReview   ColumnID = "inReview"
	ColumnDone       ColumnID = "done"
)

// Columns lists the board columns in display order.
var Columns = []ColumnID{ColumnTodo, ColumnInProgress, ColumnInReview, ColumnDone}

// Column returns the column a task with this status belongs to. Unknown
// statuses land in the todo column.
func (s Status) Column() ColumnID {
	switch s {
	case StatusComplete:
		return ColumnDone
	case StatusInReview:
		return ColumnInReview
	case StatusInProgress:
		return ColumnInProgress
	default:
		return ColumnTodo
	}
}

// Status returns the status a task takes when dropped on the column.
func (c ColumnID) Status() Status {
	switch c {
	case ColumnDone:
		return StatusComplete
	case ColumnInReview:
		return StatusInReview
	case ColumnInProgress:
		return StatusInProgress
	default:
		return StatusTodo
	}
}

// Valid reports whether c is one of the board columns.
func (c ColumnID) Valid() bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnInReview, ColumnDone:
		return true
	}
	return false
}

// ParseColumn validates a column identifier received from a client.
func ParseColumn(raw string) (ColumnID, error) {
	c := ColumnID(raw)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, raw)
	}
	return c, nil
}

// ApprovalType tags a task that reached Complete through the final decision.
type ApprovalType string

const (
	ApprovalFinalApproved ApprovalType = "final_approved"
	ApprovalFinalRejected ApprovalType = "final_rejected"
)
