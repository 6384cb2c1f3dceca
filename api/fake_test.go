package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"onboarding-board/board"
	"onboarding-board/domain"
	"onboarding-board/events"
)

// stubBackend is an in-memory HR backend. Function fields override the
// default behaviour of single calls.
type stubBackend struct {
	mu    sync.Mutex
	tasks []domain.Task

	listErr     error
	updateErr   error
	updateBlock chan struct{}
	created     []domain.NewOnboardingTask
	appUpdates  []string
}

func (s *stubBackend) ListTasks(context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

func (s *stubBackend) UpdateTaskStatus(_ context.Context, taskID string, upd domain.TaskStatusUpdate) error {
	if s.updateBlock != nil {
		<-s.updateBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.tasks {
		if s.tasks[i].Key() == taskID {
			s.tasks[i].Status = upd.Status
			s.tasks[i].ApprovalType = upd.ApprovalType
			s.tasks[i].ReviewComments = upd.ReviewComments
			return nil
		}
	}
	return errors.New("task not found")
}

func (s *stubBackend) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].Key() == taskID {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *stubBackend) UpdateApplicationStatus(_ context.Context, applicationID string, upd domain.ApplicationStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appUpdates = append(s.appUpdates, applicationID+":"+string(upd.Status))
	return nil
}

func (s *stubBackend) FinalApproveApplication(_ context.Context, applicationID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appUpdates = append(s.appUpdates, applicationID+":final")
	return nil
}

func (s *stubBackend) CreateOnboardingTask(_ context.Context, in domain.NewOnboardingTask) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, in)
	t := domain.Task{
		ID:            "db-new",
		TaskID:        "new",
		TaskTitle:     "Onboarding for " + in.EmployeeName,
		EmployeeName:  in.EmployeeName,
		EmployeeID:    in.EmployeeID,
		ApplicationID: in.ApplicationID,
		Status:        domain.StatusTodo,
	}
	s.tasks = append(s.tasks, t)
	return t, nil
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	return "hr-user", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TasksUpdated
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TasksUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func task(id, app string, status domain.Status) domain.Task {
	return domain.Task{ID: "db-" + id, TaskID: id, TaskTitle: "Task " + id, EmployeeName: "Employee " + id, ApplicationID: app, Status: status}
}

func newTestServer(t *testing.T, backend *stubBackend, svc Services) (*echo.Echo, *board.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opts := board.Options{Logger: logger}
	if svc.Stream != nil {
		opts.Notifier = svc.Stream
	}
	reg := board.NewRegistry(backend, opts)
	e := echo.New()
	Register(e, reg, svc, mockAuth{}, logger)
	return e, reg
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newUnauthenticated(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
