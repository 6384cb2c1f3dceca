package hrclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"onboarding-board/domain"
)

const defaultTimeout = 15 * time.Second

// Client talks to the HR backend's kanban and onboarding endpoints.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a Client. A zero timeout uses the default.
func New(baseURL, bearer string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx answer or a body with success set to false.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

type taskList struct {
	envelope
	Tasks []domain.Task `json:"tasks"`
}

type createdTask struct {
	envelope
	Task domain.Task `json:"task"`
}

type finalApproval struct {
	ReviewComments string `json:"reviewComments,omitempty"`
}

func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out taskList
	if err := c.do(ctx, http.MethodGet, "/hr/kanban/get-kanban-tasks", "", nil, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		return []domain.Task{}, nil
	}
	return out.Tasks, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, upd domain.TaskStatusUpdate) error {
	return c.do(ctx, http.MethodPut, "/hr/kanban/update-task-status/"+url.PathEscape(taskID), "", upd, &envelope{})
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/hr/kanban/delete-task/"+url.PathEscape(taskID), "", nil, &envelope{})
}

// CreateOnboardingTask creates the task for an approved onboarding application.
func (c *Client) CreateOnboardingTask(ctx context.Context, in domain.NewOnboardingTask) (domain.Task, error) {
	var out createdTask
	if err := c.do(ctx, http.MethodPost, "/hr/kanban/create-onboarding-task", in.ApplicationID, in, &out); err != nil {
		return domain.Task{}, err
	}
	return out.Task, nil
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, applicationID string, upd domain.ApplicationStatusUpdate) error {
	return c.do(ctx, http.MethodPut, "/onboarding/update-status/"+url.PathEscape(applicationID), applicationID, upd, &domain.Application{})
}

func (c *Client) FinalApproveApplication(ctx context.Context, applicationID, comments string) error {
	return c.do(ctx, http.MethodPut, "/onboarding/final-approve/"+url.PathEscape(applicationID), applicationID, finalApproval{ReviewComments: comments}, &domain.Application{})
}

// do sends body as JSON and decodes the answer into out. applicationID is
// only used to label lock conflicts.
func (c *Client) do(ctx context.Context, method, path, applicationID string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = sonic.Unmarshal(raw, &env)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || (env.Success != nil && !*env.Success) {
		msg := env.text()
		if msg == "" && resp.StatusCode > 299 {
			msg = strings.TrimSpace(string(raw))
		}
		serr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
		if isLockConflict(resp.StatusCode, msg) {
			return &domain.ApplicationLockedError{ApplicationID: applicationID, Message: serr.Error()}
		}
		return serr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func isLockConflict(code int, msg string) bool {
	if code == http.StatusConflict || code == http.StatusLocked {
		return true
	}
	m := strings.ToLower(msg)
	return strings.Contains(m, "finally approved") || strings.Contains(m, "final approval") || strings.Contains(m, "already approved")
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == code
}
