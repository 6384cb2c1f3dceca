package board

import (
	"context"
	"sync"

	"onboarding-board/domain"
)

type appCall struct {
	ApplicationID string
	Update        domain.ApplicationStatusUpdate
	Final         bool
	Comments      string
}

type taskCall struct {
	TaskID string
	Update domain.TaskStatusUpdate
}

// fakeBackend records every call. Tasks listed are kept in sync with status
// updates so reloads see the server's view.
type fakeBackend struct {
	mu sync.Mutex

	tasks []domain.Task

	listErr   error
	updateErr error
	appErr    error
	deleteErr func(id string) error

	lists    int
	updates  []taskCall
	apps     []appCall
	deleted  []string
	onUpdate func(taskID string)
}

func (f *fakeBackend) ListTasks(context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

func (f *fakeBackend) UpdateTaskStatus(_ context.Context, taskID string, upd domain.TaskStatusUpdate) error {
	f.mu.Lock()
	f.updates = append(f.updates, taskCall{TaskID: taskID, Update: upd})
	hook := f.onUpdate
	err := f.updateErr
	if err == nil {
		for i := range f.tasks {
			if f.tasks[i].Matches(taskID) {
				f.tasks[i].Status = upd.Status
				f.tasks[i].ApprovalType = upd.ApprovalType
				if upd.ReviewComments != "" {
					f.tasks[i].ReviewComments = upd.ReviewComments
				}
			}
		}
	}
	f.mu.Unlock()
	if hook != nil {
		hook(taskID)
	}
	return err
}

func (f *fakeBackend) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		if err := f.deleteErr(taskID); err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, taskID)
	kept := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.Matches(taskID) {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakeBackend) UpdateApplicationStatus(_ context.Context, id string, upd domain.ApplicationStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = append(f.apps, appCall{ApplicationID: id, Update: upd})
	return f.appErr
}

func (f *fakeBackend) FinalApproveApplication(_ context.Context, id, comments string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = append(f.apps, appCall{ApplicationID: id, Final: true, Comments: comments})
	return f.appErr
}

func (f *fakeBackend) taskCalls() []taskCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]taskCall(nil), f.updates...)
}

func (f *fakeBackend) appCalls() []appCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appCall(nil), f.apps...)
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type recordedNotice struct {
	Owner  string
	Notice Notice
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
	changes int
}

func (n *fakeNotifier) Notify(owner string, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{Owner: owner, Notice: notice})
}

func (n *fakeNotifier) BoardChanged(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes++
}

func (n *fakeNotifier) levels() []NoticeLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeLevel, 0, len(n.notices))
	for _, r := range n.notices {
		out = append(out, r.Notice.Level)
	}
	return out
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []domain.Decision
	err       error
}

func (r *fakeRecorder) RecordDecision(_ context.Context, d domain.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return r.err
}

func onboardingTask(id, app string, status domain.Status) domain.Task {
	return domain.Task{
		ID:            "db-" + id,
		TaskID:        id,
		TaskTitle:     "Onboard " + id,
		EmployeeName:  "Employee " + id,
		EmployeeID:    "E-" + id,
		ApplicationID: app,
		Status:        status,
	}
}
