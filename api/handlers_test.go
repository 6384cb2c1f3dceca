package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"onboarding-board/board"
	"onboarding-board/domain"
)

func decodeJSON[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func columnKeys(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Key())
	}
	return out
}

func TestGetBoardBucketsTasks(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{
		task("t1", "app-1", domain.StatusTodo),
		task("t2", "app-2", domain.StatusInReview),
		task("t3", "", domain.Status("Blocked")),
	}}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[boardResponse](t, rec.Body.Bytes())
	if got := columnKeys(resp.Columns[domain.ColumnTodo]); len(got) != 2 || got[0] != "t1" || got[1] != "t3" {
		t.Fatalf("unexpected todo column %v", got)
	}
	if got := columnKeys(resp.Columns[domain.ColumnInReview]); len(got) != 1 || got[0] != "t2" {
		t.Fatalf("unexpected inReview column %v", got)
	}
	if resp.Decision.State != board.GateIdle {
		t.Fatalf("expected idle gate, got %q", resp.Decision.State)
	}
}

func TestGetBoardRequiresAuth(t *testing.T) {
	e, _ := newTestServer(t, &stubBackend{}, Services{})
	req := newUnauthenticated(http.MethodGet, "/api/board")
	rec := serve(e, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetBoardLoadFailure(t *testing.T) {
	e, _ := newTestServer(t, &stubBackend{listErr: errors.New("hr down")}, Services{})
	rec := doRequest(e, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if rec.Body.String() != "failed to load tasks" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestMoveCommitsAndBridges(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t1", "app-1", domain.StatusTodo)}}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"inReview"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[outcomeResponse](t, rec.Body.Bytes())
	if resp.Outcome != board.OutcomeCommitted {
		t.Fatalf("expected committed, got %q", resp.Outcome)
	}
	if got := columnKeys(resp.Board.Columns[domain.ColumnInReview]); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("task not in inReview: %v", got)
	}
	if len(backend.appUpdates) != 1 || backend.appUpdates[0] != "app-1:in_review_final" {
		t.Fatalf("unexpected application updates %v", backend.appUpdates)
	}
}

func TestDragDropErrorMapping(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{
		task("t1", "app-1", domain.StatusInProgress),
		{ID: "db-t9", TaskID: "t9", Status: domain.StatusComplete, ApprovalType: domain.ApprovalFinalApproved},
	}}
	e, _ := newTestServer(t, backend, Services{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"locked task", http.MethodPost, "/api/board/drag", `{"column":"done","taskId":"t9"}`, http.StatusConflict},
		{"wrong column", http.MethodPost, "/api/board/drag", `{"column":"todo","taskId":"t1"}`, http.StatusBadRequest},
		{"unknown column", http.MethodPost, "/api/board/drag", `{"column":"backlog","taskId":"t1"}`, http.StatusBadRequest},
		{"unknown task", http.MethodPost, "/api/board/drag", `{"column":"todo","taskId":"nope"}`, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/board/drag", `{"column":"todo","taskId":"t1","x":1}`, http.StatusBadRequest},
		{"drop without drag", http.MethodPost, "/api/board/drop", `{"column":"todo"}`, http.StatusBadRequest},
		{"move completed", http.MethodPost, "/api/board/move", `{"taskId":"t9","column":"todo"}`, http.StatusConflict},
		{"no decision pending", http.MethodPost, "/api/board/decision", `{"action":"approve"}`, http.StatusConflict},
		{"unknown action", http.MethodPost, "/api/board/decision", `{"action":"maybe"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDragThenDropSameColumnIsNoop(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t1", "app-1", domain.StatusInProgress)}}
	e, _ := newTestServer(t, backend, Services{})

	if rec := doRequest(e, http.MethodPost, "/api/board/drag", `{"column":"inProgress","taskId":"t1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("drag: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := doRequest(e, http.MethodPost, "/api/board/drop", `{"column":"inProgress"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop: expected 200, got %d", rec.Code)
	}
	if resp := decodeJSON[outcomeResponse](t, rec.Body.Bytes()); resp.Outcome != board.OutcomeNoop {
		t.Fatalf("expected noop, got %q", resp.Outcome)
	}
	if len(backend.appUpdates) != 0 {
		t.Fatalf("noop drop must not call the backend, got %v", backend.appUpdates)
	}
}

func TestMoveRollbackMapsToBadGateway(t *testing.T) {
	backend := &stubBackend{
		tasks:     []domain.Task{task("t1", "app-1", domain.StatusTodo)},
		updateErr: errors.New("500 from hr"),
	}
	e, reg := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"inProgress"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	ctl, _ := reg.Get(context.Background(), "hr-user")
	if got := columnKeys(ctl.Snapshot().Columns[domain.ColumnTodo]); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("move not rolled back: %v", got)
	}
}

func TestMoveOnLockedApplicationReturns423(t *testing.T) {
	backend := &stubBackend{
		tasks:     []domain.Task{task("t1", "app-1", domain.StatusTodo)},
		updateErr: &domain.ApplicationLockedError{ApplicationID: "app-1", Message: "application already finally approved"},
	}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"inProgress"}`)
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFinalRejectThroughDecisionEndpoint(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t3", "app-3", domain.StatusInReview)}}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t3","column":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeJSON[outcomeResponse](t, rec.Body.Bytes()); resp.Outcome != board.OutcomeAwaitingDecision {
		t.Fatalf("expected awaiting decision, got %q", resp.Outcome)
	}

	rec = doRequest(e, http.MethodGet, "/api/board/decision", "")
	status := decodeJSON[board.GateStatus](t, rec.Body.Bytes())
	if status.State != board.GateAwaitingDecision || status.TaskID != "t3" {
		t.Fatalf("unexpected gate status %#v", status)
	}

	rec = doRequest(e, http.MethodPost, "/api/board/decision", `{"action":"reject","reason":"missing documents"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[outcomeResponse](t, rec.Body.Bytes())
	if resp.Outcome != board.OutcomeRejected {
		t.Fatalf("expected rejected, got %q", resp.Outcome)
	}
	done := resp.Board.Columns[domain.ColumnDone]
	if len(done) != 1 || done[0].ApprovalType != domain.ApprovalFinalRejected || done[0].ReviewComments != "Rejected: missing documents" {
		t.Fatalf("unexpected done column %#v", done)
	}
	if len(backend.appUpdates) != 1 || backend.appUpdates[0] != "app-3:rejected" {
		t.Fatalf("unexpected application updates %v", backend.appUpdates)
	}
}

func TestCancelDecisionKeepsTask(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t1", "app-1", domain.StatusInProgress)}}
	e, _ := newTestServer(t, backend, Services{})

	doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"done"}`)
	rec := doRequest(e, http.MethodPost, "/api/board/decision", `{"action":"cancel"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON[outcomeResponse](t, rec.Body.Bytes())
	if resp.Outcome != board.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %q", resp.Outcome)
	}
	if got := columnKeys(resp.Board.Columns[domain.ColumnInProgress]); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("task should stay in progress, got %v", got)
	}
}

func TestClearAllDeletesEveryTask(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{
		task("t1", "", domain.StatusTodo),
		task("t2", "", domain.StatusComplete),
	}}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodDelete, "/api/board/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeJSON[clearResponse](t, rec.Body.Bytes()); resp.Deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", resp.Deleted)
	}
	if len(backend.tasks) != 0 {
		t.Fatalf("backend still holds %d tasks", len(backend.tasks))
	}
}

func TestCreateTaskPublishesUpdate(t *testing.T) {
	backend := &stubBackend{}
	pub := &recordingPublisher{}
	e, _ := newTestServer(t, backend, Services{Creator: backend, Publisher: pub})

	rec := doRequest(e, http.MethodPost, "/api/onboarding-tasks", `{"applicationId":"app-7","employeeId":"E-7","employeeName":"Ana","employeeEmail":"ana@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeJSON[domain.Task](t, rec.Body.Bytes())
	if created.Key() != "new" || created.ApplicationID != "app-7" {
		t.Fatalf("unexpected task %#v", created)
	}
	if len(pub.events) != 1 || pub.events[0].Source != "onboarding" || pub.events[0].TaskID != "new" {
		t.Fatalf("unexpected events %#v", pub.events)
	}

	rec = doRequest(e, http.MethodPost, "/api/onboarding-tasks", `{"applicationId":"app-7"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
	if len(backend.created) != 1 {
		t.Fatalf("invalid request reached the backend")
	}
}

func TestCreateTaskDisabled(t *testing.T) {
	e, _ := newTestServer(t, &stubBackend{}, Services{})
	rec := doRequest(e, http.MethodPost, "/api/onboarding-tasks", `{}`)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

type stubDecisionLog struct {
	decisions []domain.Decision
	err       error
	asked     string
}

func (s *stubDecisionLog) ListDecisions(_ context.Context, applicationID string) ([]domain.Decision, error) {
	s.asked = applicationID
	return s.decisions, s.err
}

func TestListDecisions(t *testing.T) {
	journal := &stubDecisionLog{decisions: []domain.Decision{{TaskID: "t1", ApplicationID: "app-1", Approval: domain.ApprovalFinalApproved}}}
	e, _ := newTestServer(t, &stubBackend{}, Services{Decisions: journal})

	rec := doRequest(e, http.MethodGet, "/api/decisions?applicationId=app-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeJSON[decisionsResponse](t, rec.Body.Bytes())
	if journal.asked != "app-1" || len(resp.Decisions) != 1 || resp.Decisions[0].TaskID != "t1" {
		t.Fatalf("unexpected response %#v", resp)
	}

	if rec := doRequest(e, http.MethodGet, "/api/decisions", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without applicationId, got %d", rec.Code)
	}
	journal.err = errors.New("table unavailable")
	if rec := doRequest(e, http.MethodGet, "/api/decisions?applicationId=app-1", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on journal error, got %d", rec.Code)
	}
}

func TestExportBoard(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t1", "app-1", domain.StatusTodo)}}
	e, _ := newTestServer(t, backend, Services{})

	rec := doRequest(e, http.MethodGet, "/api/board/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxMIME {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "onboarding-board.xlsx") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty workbook")
	}
}

func TestInFlightGuardRejectsDoubleSubmit(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	guard := NewRedisGuard(rc, time.Minute)

	block := make(chan struct{})
	backend := &stubBackend{
		tasks:       []domain.Task{task("t1", "", domain.StatusTodo)},
		updateBlock: block,
	}
	e, _ := newTestServer(t, backend, Services{Guard: guard})
	doRequest(e, http.MethodGet, "/api/board", "")

	first := make(chan int, 1)
	go func() {
		first <- doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"inProgress"}`).Code
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("inflight:hr-user:drop") {
		if time.Now().After(deadline) {
			t.Fatal("first request never acquired the guard")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := doRequest(e, http.MethodPost, "/api/board/drop", `{"column":"todo"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	close(block)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if mr.Exists("inflight:hr-user:drop") {
		t.Fatal("guard not released")
	}
}

type failingGuard struct{}

func (failingGuard) Acquire(context.Context, string, string) (string, bool, error) {
	return "", false, fmt.Errorf("dial tcp: connection refused")
}

func (failingGuard) Release(context.Context, string, string, string) error { return nil }

func TestGuardOutageFailsOpen(t *testing.T) {
	e, _ := newTestServer(t, &stubBackend{}, Services{Guard: failingGuard{}})
	rec := doRequest(e, http.MethodPost, "/api/board/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ApplicationLockedError{ApplicationID: "a"}, http.StatusLocked},
		{fmt.Errorf("wrap: %w", &domain.ApplicationLockedError{ApplicationID: "a"}), http.StatusLocked},
		{domain.ErrTaskLocked, http.StatusConflict},
		{domain.ErrDecisionPending, http.StatusConflict},
		{domain.ErrDecisionInFlight, http.StatusConflict},
		{domain.ErrNoDecisionPending, http.StatusConflict},
		{domain.ErrTaskNotInColumn, http.StatusBadRequest},
		{domain.ErrNoPendingMove, http.StatusBadRequest},
		{fmt.Errorf("%w: %q", domain.ErrUnknownColumn, "x"), http.StatusBadRequest},
		{domain.ErrTaskNotFound, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t, &stubBackend{}, Services{})
	rec := serve(e, newUnauthenticated(http.MethodGet, "/healthz"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestEndSessionDiscardsOpenGate(t *testing.T) {
	backend := &stubBackend{tasks: []domain.Task{task("t1", "", domain.StatusInReview)}}
	e, reg := newTestServer(t, backend, Services{})

	doRequest(e, http.MethodPost, "/api/board/move", `{"taskId":"t1","column":"done"}`)
	if rec := doRequest(e, http.MethodDelete, "/api/board/session", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if users := reg.Users(); len(users) != 0 {
		t.Fatalf("expected no sessions, got %v", users)
	}
	rec := doRequest(e, http.MethodGet, "/api/board/decision", "")
	if status := decodeJSON[board.GateStatus](t, rec.Body.Bytes()); status.State != board.GateIdle {
		t.Fatalf("new session should start idle, got %#v", status)
	}
}
