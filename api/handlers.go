package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"onboarding-board/board"
	"onboarding-board/domain"
	"onboarding-board/events"
	"onboarding-board/export"
)

const (
	maxBodySize = 64 << 10
	xlsxMIME    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions Sessions, svc Services, auth Authenticator, logger *log.Logger) {
	h := &handlers{sessions: sessions, svc: svc, auth: auth, logger: logger}

	e.GET("/api/board", h.withBoard("/api/board", "", h.getBoard))
	e.POST("/api/board/refresh", h.withBoard("/api/board/refresh", "refresh", h.refresh))
	e.POST("/api/board/drag", h.withBoard("/api/board/drag", "", h.drag))
	e.POST("/api/board/drop", h.withBoard("/api/board/drop", "drop", h.drop))
	e.POST("/api/board/move", h.withBoard("/api/board/move", "drop", h.move))
	e.GET("/api/board/decision", h.withBoard("/api/board/decision", "", h.getDecision))
	e.POST("/api/board/decision", h.withBoard("/api/board/decision", "decision", h.postDecision))
	e.DELETE("/api/board/tasks", h.withBoard("/api/board/tasks", "clear", h.clearAll))
	e.GET("/api/board/export", h.withBoard("/api/board/export", "", h.exportBoard))
	e.DELETE("/api/board/session", h.withUser("/api/board/session", "", h.endSession))
	e.POST("/api/onboarding-tasks", h.withUser("/api/onboarding-tasks", "create", h.createTask))
	e.GET("/api/decisions", h.withUser("/api/decisions", "", h.listDecisions))
	if svc.Stream != nil {
		e.GET("/stream", streamBoard(sessions, auth, svc.Stream, logger))
	}
	e.GET("/healthz", healthz())
}

type handlers struct {
	sessions Sessions
	svc      Services
	auth     Authenticator
	logger   *log.Logger
}

type boardResponse struct {
	Columns  map[domain.ColumnID][]domain.Task `json:"columns"`
	Decision board.GateStatus                  `json:"decision"`
}

type outcomeResponse struct {
	Outcome board.Outcome `json:"outcome"`
	Board   boardResponse `json:"board"`
}

type dragRequest struct {
	Column string `json:"column"`
	TaskID string `json:"taskId"`
}

type dropRequest struct {
	Column string `json:"column"`
}

type decisionRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
}

type clearResponse struct {
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

type decisionsResponse struct {
	Decisions []domain.Decision `json:"decisions"`
}

func newBoardResponse(ctl *board.Controller) boardResponse {
	return boardResponse{Columns: ctl.Snapshot().Columns, Decision: ctl.Decision()}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type userFunc func(c echo.Context, userID string, m *boardRequestMetrics) error

type boardFunc func(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error

// withUser authenticates the request, holds the in-flight guard for control and
// records request metrics around fn.
func (h *handlers) withUser(route, control string, fn userFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newBoardRequestMetrics(c.Request().Context(), h.logger, route)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, metrics.failure)
		}()

		authStart := time.Now()
		userID, err := h.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if err != nil {
			metrics.Fail("auth", err)
			return c.String(http.StatusUnauthorized, err.Error())
		}
		metrics.SetUser(userID)

		if control != "" && h.svc.Guard != nil {
			token, ok, gerr := h.svc.Guard.Acquire(ctx, userID, control)
			switch {
			case gerr != nil:
				h.logger.WithError(gerr).WithFields(log.Fields{"user": userID, "control": control}).Warn("in-flight guard unavailable")
			case !ok:
				metrics.Fail("in_flight", nil)
				return c.String(http.StatusTooManyRequests, "request already in progress")
			default:
				defer func() {
					if err := h.svc.Guard.Release(context.WithoutCancel(ctx), userID, control, token); err != nil {
						h.logger.WithError(err).WithField("user", userID).Warn("failed to release in-flight guard")
					}
				}()
			}
		}
		return fn(c, userID, metrics)
	}
}

// withBoard is withUser plus the lookup of the caller's board session.
func (h *handlers) withBoard(route, control string, fn boardFunc) echo.HandlerFunc {
	return h.withUser(route, control, func(c echo.Context, userID string, m *boardRequestMetrics) error {
		start := time.Now()
		ctl, err := h.sessions.Get(c.Request().Context(), userID)
		m.ObserveBackend(time.Since(start))
		if err != nil {
			m.Fail("load", err)
			return c.String(http.StatusBadGateway, "failed to load tasks")
		}
		return fn(c, ctl, m)
	})
}

func (h *handlers) getBoard(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	resp := newBoardResponse(ctl)
	m.SetTasksReturned(countTasks(resp.Columns))
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) refresh(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	start := time.Now()
	err := ctl.Load(c.Request().Context())
	m.ObserveBackend(time.Since(start))
	if err != nil {
		return h.fail(c, m, "load", err)
	}
	return h.getBoard(c, ctl, m)
}

func (h *handlers) drag(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	var req dragRequest
	if err := decodeBody(c, &req); err != nil {
		m.Fail("decode", err)
		return c.String(http.StatusBadRequest, "invalid body")
	}
	column, err := domain.ParseColumn(req.Column)
	if err != nil {
		return h.fail(c, m, "validate", err)
	}
	m.SetTask(req.TaskID)
	if err := ctl.BeginDrag(column, req.TaskID); err != nil {
		return h.fail(c, m, "drag", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) drop(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	var req dropRequest
	if err := decodeBody(c, &req); err != nil {
		m.Fail("decode", err)
		return c.String(http.StatusBadRequest, "invalid body")
	}
	column, err := domain.ParseColumn(req.Column)
	if err != nil {
		return h.fail(c, m, "validate", err)
	}
	start := time.Now()
	out, err := ctl.Drop(c.Request().Context(), column)
	m.ObserveBackend(time.Since(start))
	return h.outcome(c, ctl, m, out, err)
}

func (h *handlers) move(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	var req dragRequest
	if err := decodeBody(c, &req); err != nil {
		m.Fail("decode", err)
		return c.String(http.StatusBadRequest, "invalid body")
	}
	column, err := domain.ParseColumn(req.Column)
	if err != nil {
		return h.fail(c, m, "validate", err)
	}
	m.SetTask(req.TaskID)
	start := time.Now()
	out, err := ctl.MoveTask(c.Request().Context(), req.TaskID, column)
	m.ObserveBackend(time.Since(start))
	return h.outcome(c, ctl, m, out, err)
}

func (h *handlers) getDecision(c echo.Context, ctl *board.Controller, _ *boardRequestMetrics) error {
	return c.JSON(http.StatusOK, ctl.Decision())
}

func (h *handlers) postDecision(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	var req decisionRequest
	if err := decodeBody(c, &req); err != nil {
		m.Fail("decode", err)
		return c.String(http.StatusBadRequest, "invalid body")
	}
	m.SetTask(ctl.Decision().TaskID)
	ctx := c.Request().Context()
	start := time.Now()
	var (
		out board.Outcome
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		out, err = ctl.Approve(ctx, req.Comments)
	case "reject":
		out, err = ctl.Reject(ctx, req.Reason)
	case "cancel":
		out = board.OutcomeCancelled
		err = ctl.CancelDecision()
	default:
		m.Fail("validate", nil)
		return c.String(http.StatusBadRequest, "unknown action")
	}
	m.ObserveBackend(time.Since(start))
	return h.outcome(c, ctl, m, out, err)
}

func (h *handlers) clearAll(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	start := time.Now()
	n, err := ctl.ClearAll(c.Request().Context())
	m.ObserveBackend(time.Since(start))
	if err != nil {
		m.Fail("clear", err)
		h.logger.WithError(err).WithField("user", ctl.Owner()).Error("clear all failed")
		return c.JSON(http.StatusBadGateway, clearResponse{Deleted: n, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, clearResponse{Deleted: n})
}

func (h *handlers) exportBoard(c echo.Context, ctl *board.Controller, m *boardRequestMetrics) error {
	snap := ctl.Snapshot()
	m.SetTasksReturned(countTasks(snap.Columns))
	data, err := export.Board(snap, time.Now())
	if err != nil {
		m.Fail("export", err)
		h.logger.WithError(err).Error("board export failed")
		return c.String(http.StatusInternalServerError, "export failed")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.FileName+`"`)
	return c.Blob(http.StatusOK, xlsxMIME, data)
}

// endSession discards the caller's board, including a pending drag or an open
// decision gate.
func (h *handlers) endSession(c echo.Context, userID string, _ *boardRequestMetrics) error {
	h.sessions.Drop(userID)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) createTask(c echo.Context, userID string, m *boardRequestMetrics) error {
	if h.svc.Creator == nil {
		return c.String(http.StatusNotImplemented, "task creation disabled")
	}
	var req domain.NewOnboardingTask
	if err := decodeBody(c, &req); err != nil {
		m.Fail("decode", err)
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.ApplicationID) == "" || strings.TrimSpace(req.EmployeeID) == "" || strings.TrimSpace(req.EmployeeName) == "" {
		m.Fail("validate", nil)
		return c.String(http.StatusBadRequest, "applicationId, employeeId and employeeName are required")
	}
	ctx := c.Request().Context()
	start := time.Now()
	task, err := h.svc.Creator.CreateOnboardingTask(ctx, req)
	m.ObserveBackend(time.Since(start))
	if err != nil {
		return h.fail(c, m, "create", err)
	}
	m.SetTask(task.Key())

	if h.svc.Publisher != nil {
		ev := events.TasksUpdated{Source: "onboarding", TaskID: task.Key()}
		if err := h.svc.Publisher.Publish(ctx, ev); err != nil {
			h.logger.WithError(err).WithFields(log.Fields{"user": userID, "task": task.Key()}).Warn("failed to publish tasks update")
		}
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) listDecisions(c echo.Context, _ string, m *boardRequestMetrics) error {
	if h.svc.Decisions == nil {
		return c.String(http.StatusNotImplemented, "decision journal disabled")
	}
	appID := strings.TrimSpace(c.QueryParam("applicationId"))
	if appID == "" {
		m.Fail("validate", nil)
		return c.String(http.StatusBadRequest, "applicationId is required")
	}
	start := time.Now()
	list, err := h.svc.Decisions.ListDecisions(c.Request().Context(), appID)
	m.ObserveBackend(time.Since(start))
	if err != nil {
		m.Fail("journal", err)
		h.logger.WithError(err).WithField("application", appID).Error("failed to list decisions")
		return c.String(http.StatusInternalServerError, "failed to list decisions")
	}
	if list == nil {
		list = []domain.Decision{}
	}
	return c.JSON(http.StatusOK, decisionsResponse{Decisions: list})
}

func (h *handlers) outcome(c echo.Context, ctl *board.Controller, m *boardRequestMetrics, out board.Outcome, err error) error {
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	m.SetOutcome(string(out))
	resp := outcomeResponse{Outcome: out, Board: newBoardResponse(ctl)}
	m.SetTasksReturned(countTasks(resp.Board.Columns))
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) fail(c echo.Context, m *boardRequestMetrics, stage string, err error) error {
	status := statusFor(err)
	m.Fail(stage, err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("stage", stage).Error("board request failed")
	}
	return c.String(status, err.Error())
}

// statusFor maps board and backend errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsApplicationLocked(err):
		return http.StatusLocked
	case errors.Is(err, domain.ErrTaskLocked),
		errors.Is(err, domain.ErrDecisionPending),
		errors.Is(err, domain.ErrDecisionInFlight),
		errors.Is(err, domain.ErrNoDecisionPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTaskNotInColumn),
		errors.Is(err, domain.ErrNoPendingMove),
		errors.Is(err, domain.ErrUnknownColumn):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func countTasks(cols map[domain.ColumnID][]domain.Task) int {
	n := 0
	for _, tasks := range cols {
		n += len(tasks)
	}
	return n
}
