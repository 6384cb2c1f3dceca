package domain

import "time"

// Task is the board's cached projection of a backend onboarding task.
type Task struct {
	ID               string       `json:"id"`
	TaskID           string       `json:"taskId,omitempty"`
	TaskTitle        string       `json:"taskTitle"`
	Description      string       `json:"description,omitempty"`
	EmployeeName     string       `json:"employeeName,omitempty"`
	EmployeeEmail    string       `json:"employeeEmail,omitempty"`
	EmployeePosition string       `json:"employeePosition,omitempty"`
	EmployeeID       string       `json:"employeeId,omitempty"`
	ApplicationID    string       `json:"applicationId,omitempty"`
	Status           Status       `json:"status"`
	ApprovalType     ApprovalType `json:"approvalType,omitempty"`
	ReviewComments   string       `json:"reviewComments,omitempty"`
	Priority         string       `json:"priority,omitempty"`
	DeadLine         string       `json:"deadLine,omitempty"`
	Department       string       `json:"department,omitempty"`
	CreatedAt        string       `json:"createdAt,omitempty"`
	UpdatedAt        string       `json:"updatedAt,omitempty"`
}

// Key is the identifier used for backend mutations.
func (t Task) Key() string {
	if t.TaskID != "" {
		return t.TaskID
	}
	return t.ID
}

// Matches reports whether id refers to this task by display or backend key.
func (t Task) Matches(id string) bool {
	return id != "" && (t.ID == id || t.TaskID == id)
}

func (t Task) State() State {
	return StateFor(t.Status, t.ApprovalType)
}

// Locked reports whether the task has reached its terminal state.
func (t Task) Locked() bool {
	_, open := t.State().(Open)
	return !open
}

// WithState returns a copy of t carrying the status and approval tag of s.
func (t Task) WithState(s State) Task {
	t.Status = s.Status()
	t.ApprovalType = ""
	if c, ok := s.(Complete); ok {
		t.ApprovalType = c.Approval
	}
	return t
}

// TaskStatusUpdate is the body of the task status mutation.
type TaskStatusUpdate struct {
	Status         Status       `json:"status"`
	ReviewComments string       `json:"reviewComments,omitempty"`
	ApprovalType   ApprovalType `json:"approvalType,omitempty"`
}

// NewOnboardingTask carries the identifiers the backend needs to create a task
// for an approved onboarding application.
type NewOnboardingTask struct {
	EmployeeID       string `json:"employeeId"`
	EmployeeName     string `json:"employeeName"`
	EmployeeEmail    string `json:"employeeEmail"`
	EmployeePosition string `json:"employeePosition,omitempty"`
	Department       string `json:"department,omitempty"`
	ApplicationID    string `json:"applicationId"`
}

// Decision is a committed final approve/reject on a task.
type Decision struct {
	TaskID        string       `json:"taskId"`
	ApplicationID string       `json:"applicationId,omitempty"`
	EmployeeName  string       `json:"employeeName,omitempty"`
	EmployeeID    string       `json:"employeeId,omitempty"`
	Approval      ApprovalType `json:"approvalType"`
	Comments      string       `json:"reviewComments,omitempty"`
	DecidedBy     string       `json:"decidedBy"`
	DecidedAt     time.Time    `json:"decidedAt"`
}
