package domain

// State is the sealed set of task states. Only the variants declared in this
// file implement it.
type State interface {
	Status() Status
	Column() ColumnID
	isState()
}

// Open is a State a task may be dragged out of. Complete does not implement it.
type Open interface {
	State
	isOpen()
}

type Todo struct{}

type InProgress struct{}

type InReview struct{}

// Complete is terminal. Approval is empty for tasks completed outside the
// final decision (legacy data); they are still locked.
type Complete struct {
	Approval ApprovalType
}

func (Todo) Status() Status       { return StatusTodo }
func (InProgress) Status() Status { return StatusInProgress }
func (InReview) Status() Status   { return StatusInReview }
func (Complete) Status() Status   { return StatusComplete }

func (Todo) Column() ColumnID       { return ColumnTodo }
func (InProgress) Column() ColumnID { return ColumnInProgress }
func (InReview) Column() ColumnID   { return ColumnInReview }
func (Complete) Column() ColumnID   { return ColumnDone }

func (Todo) isState()       {}
func (InProgress) isState() {}
func (InReview) isState()   {}
func (Complete) isState()   {}

func (Todo) isOpen()       {}
func (InProgress) isOpen() {}
func (InReview) isOpen()   {}

// StateFor maps a raw status and approval tag to its variant. A task carrying
// an approval tag is Complete whatever its status says, so it is locked; its
// column still follows Status.Column.
func StateFor(s Status, approval ApprovalType) State {
	if approval != "" {
		return Complete{Approval: approval}
	}
	switch s {
	case StatusComplete:
		return Complete{}
	case StatusInReview:
		return InReview{}
	case StatusInProgress:
		return InProgress{}
	default:
		return Todo{}
	}
}

// OpenFor returns the open variant a non-terminal column drop produces.
func OpenFor(c ColumnID) (Open, bool) {
	switch c {
	case ColumnTodo:
		return Todo{}, true
	case ColumnInProgress:
		return InProgress{}, true
	case ColumnInReview:
		return InReview{}, true
	}
	return nil, false
}
