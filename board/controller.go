package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"onboarding-board/domain"
)

// TaskBackend reads and mutates onboarding tasks.
type TaskBackend interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, upd domain.TaskStatusUpdate) error
	DeleteTask(ctx context.Context, taskID string) error
}

// Backend is everything the board needs from the HR service.
type Backend interface {
	TaskBackend
	ApplicationBackend
}

// DecisionRecorder keeps a history of final decisions.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d domain.Decision) error
}

// Outcome describes what a drop or decision did.
type Outcome string

const (
	OutcomeNoop             Outcome = "noop"
	OutcomeCommitted        Outcome = "committed"
	OutcomeAwaitingDecision Outcome = "awaiting_decision"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected         Outcome = "rejected"
)

// Options carries optional collaborators of a Controller.
type Options struct {
	Recorder DecisionRecorder
	Notifier Notifier
	Logger   *log.Logger
	Now      func() time.Time
}

// Controller runs the task board workflow for one user session: the store,
// the drag in progress and the final decision gate. Backend calls are made
// without holding the lock.
type Controller struct {
	owner    string
	backend  Backend
	bridge   *Bridge
	recorder DecisionRecorder
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	store  *Store
	drag   *pendingMove
	gate   *Gate
	loaded bool
}

func NewController(owner string, backend Backend, opts Options) *Controller {
	if backend == nil {
		panic("board.NewController: backend is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Controller{
		owner:    owner,
		backend:  backend,
		bridge:   NewBridge(backend, logger),
		recorder: opts.Recorder,
		notifier: notifier,
		logger:   logger,
		now:      now,
		store:    NewStore(),
		gate:     newGate(),
	}
}

func (c *Controller) Owner() string { return c.owner }

// Loaded reports whether at least one load succeeded.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// Decision returns the state of the final decision gate.
func (c *Controller) Decision() GateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Status()
}

// Load fetches every task and replaces the store. On failure the previous
// state is kept.
func (c *Controller) Load(ctx context.Context) error {
	tasks, err := c.backend.ListTasks(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("user", c.owner).Error("failed to load tasks")
		c.notify(NoticeError, "Failed to load tasks", "")
		return fmt.Errorf("load tasks: %w", err)
	}

	c.mu.Lock()
	c.store.Replace(tasks)
	c.loaded = true
	kept := c.store.Len()
	if c.drag != nil {
		if _, _, _, ok := c.store.Find(c.drag.taskID); !ok {
			c.drag = nil
		}
	}
	c.mu.Unlock()

	c.logger.WithFields(log.Fields{"user": c.owner, "tasks": kept, "fetched": len(tasks)}).Debug("board loaded")
	c.notifier.BoardChanged(c.owner)
	return nil
}

// BeginDrag records a task picked up from column. Completed tasks and tasks
// in the done column cannot be picked up.
func (c *Controller) BeginDrag(column domain.ColumnID, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gate.Awaiting() {
		return domain.ErrDecisionPending
	}
	if column == domain.ColumnDone {
		return domain.ErrTaskLocked
	}
	at, _, task, ok := c.store.Find(taskID)
	if !ok {
		return domain.ErrTaskNotFound
	}
	if at != column {
		return domain.ErrTaskNotInColumn
	}
	open, ok := task.State().(domain.Open)
	if !ok {
		return domain.ErrTaskLocked
	}
	c.drag = &pendingMove{taskID: task.Key(), from: open}
	return nil
}

// Drop ends the drag on target. A drop on done opens the final decision gate
// instead of moving the task.
func (c *Controller) Drop(ctx context.Context, target domain.ColumnID) (Outcome, error) {
	if !target.Valid() {
		return OutcomeNoop, fmt.Errorf("%w: %q", domain.ErrUnknownColumn, target)
	}

	c.mu.Lock()
	p := c.drag
	c.drag = nil
	if p == nil {
		c.mu.Unlock()
		return OutcomeNoop, domain.ErrNoPendingMove
	}
	if target == p.from.Column() {
		c.mu.Unlock()
		return OutcomeNoop, nil
	}
	if target == domain.ColumnDone {
		err := c.gate.open(*p)
		c.mu.Unlock()
		if err != nil {
			return OutcomeNoop, err
		}
		c.notifier.BoardChanged(c.owner)
		return OutcomeAwaitingDecision, nil
	}

	to, _ := domain.OpenFor(target)
	from, idx, task, ok := c.store.Find(p.taskID)
	if !ok || from != p.from.Column() {
		c.mu.Unlock()
		return OutcomeNoop, domain.ErrTaskNotFound
	}
	m := newMove(from, idx, task, to)
	if err := m.Apply(c.store); err != nil {
		c.mu.Unlock()
		return OutcomeNoop, err
	}
	c.mu.Unlock()
	c.notifier.BoardChanged(c.owner)

	return c.commit(ctx, m)
}

// MoveTask drags a task from its current column and drops it on target.
func (c *Controller) MoveTask(ctx context.Context, taskID string, target domain.ColumnID) (Outcome, error) {
	c.mu.Lock()
	column, _, _, ok := c.store.Find(taskID)
	c.mu.Unlock()
	if !ok {
		return OutcomeNoop, domain.ErrTaskNotFound
	}
	if err := c.BeginDrag(column, taskID); err != nil {
		return OutcomeNoop, err
	}
	return c.Drop(ctx, target)
}

// commit persists an applied move. The application bridge is only called
// after the task status write succeeded.
func (c *Controller) commit(ctx context.Context, m *Move) (Outcome, error) {
	key := m.After.Key()
	entry := c.logger.WithFields(log.Fields{
		"user": c.owner,
		"task": key,
		"move": m.ID,
		"from": m.From,
		"to":   m.To,
	})

	if err := c.backend.UpdateTaskStatus(ctx, key, domain.TaskStatusUpdate{Status: m.After.Status}); err != nil {
		c.mu.Lock()
		rerr := m.Revert(c.store)
		c.mu.Unlock()
		if rerr != nil {
			entry.WithError(rerr).Warn("rollback skipped, task no longer in target column")
		}
		entry.WithError(err).Error("task status update failed, move rolled back")
		c.notifier.BoardChanged(c.owner)
		c.failed(ctx, "Failed to update task status", key, err)
		return OutcomeNoop, fmt.Errorf("update task %s status: %w", key, err)
	}

	if err := c.bridge.Sync(ctx, m.After, ""); err != nil {
		c.bridgeFailed(ctx, m.After, err)
	}
	entry.Info("task moved")
	c.notify(NoticeInfo, fmt.Sprintf("Task moved to %s", m.After.Status), key)
	return OutcomeCommitted, nil
}

// Approve finally approves the task waiting at the gate.
func (c *Controller) Approve(ctx context.Context, comments string) (Outcome, error) {
	return c.decide(ctx, domain.ApprovalFinalApproved, strings.TrimSpace(comments))
}

// Reject finally rejects the task waiting at the gate. An empty reason
// cancels the decision.
func (c *Controller) Reject(ctx context.Context, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		if err := c.CancelDecision(); err != nil {
			return OutcomeNoop, err
		}
		return OutcomeCancelled, nil
	}
	return c.decide(ctx, domain.ApprovalFinalRejected, "Rejected: "+reason)
}

// CancelDecision closes the gate; the dragged task stays where it was.
func (c *Controller) CancelDecision() error {
	c.mu.Lock()
	err := c.gate.cancel()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notifier.BoardChanged(c.owner)
	return nil
}

func (c *Controller) decide(ctx context.Context, approval domain.ApprovalType, comments string) (Outcome, error) {
	c.mu.Lock()
	p, err := c.gate.begin()
	if err != nil {
		c.mu.Unlock()
		return OutcomeNoop, err
	}
	_, _, task, ok := c.store.Find(p.taskID)
	if !ok {
		c.gate.fail()
		c.mu.Unlock()
		c.notifier.BoardChanged(c.owner)
		return OutcomeNoop, domain.ErrTaskNotFound
	}
	c.mu.Unlock()
	c.notifier.BoardChanged(c.owner)

	key := task.Key()
	upd := domain.TaskStatusUpdate{
		Status:         domain.StatusComplete,
		ApprovalType:   approval,
		ReviewComments: comments,
	}
	if err := c.backend.UpdateTaskStatus(ctx, key, upd); err != nil {
		c.mu.Lock()
		c.gate.fail()
		c.mu.Unlock()
		c.logger.WithError(err).WithFields(log.Fields{"user": c.owner, "task": key, "approval": approval}).Error("final decision failed")
		c.notifier.BoardChanged(c.owner)
		c.failed(ctx, "Failed to record final decision", key, err)
		return OutcomeNoop, fmt.Errorf("final decision for task %s: %w", key, err)
	}

	c.mu.Lock()
	committed := task.WithState(domain.Complete{Approval: approval})
	committed.ReviewComments = comments
	from, idx, current, found := c.store.Find(key)
	if found {
		m := newMove(from, idx, current, domain.Complete{Approval: approval})
		m.After.ReviewComments = comments
		if err := m.Apply(c.store); err == nil {
			committed = m.After
		}
	}
	c.gate.resolve(approval)
	c.mu.Unlock()
	c.notifier.BoardChanged(c.owner)
	if !found {
		_ = c.Load(ctx)
	}

	var berr error
	if approval == domain.ApprovalFinalRejected {
		berr = c.bridge.Reject(ctx, committed, comments)
	} else {
		berr = c.bridge.Sync(ctx, committed, comments)
	}
	if berr != nil {
		c.bridgeFailed(ctx, committed, berr)
	}
	c.record(ctx, committed, approval, comments)

	c.logger.WithFields(log.Fields{"user": c.owner, "task": key, "approval": approval}).Info("final decision recorded")
	if approval == domain.ApprovalFinalRejected {
		c.notify(NoticeInfo, "Task finally rejected", key)
		return OutcomeRejected, nil
	}
	c.notify(NoticeInfo, "Task finally approved", key)
	return OutcomeApproved, nil
}

// ClearAll deletes every backend task and reloads the board. It keeps going
// after individual failures and reports them together.
func (c *Controller) ClearAll(ctx context.Context) (int, error) {
	tasks, err := c.backend.ListTasks(ctx)
	if err != nil {
		c.notify(NoticeError, "Failed to load tasks for deletion", "")
		return 0, fmt.Errorf("list tasks: %w", err)
	}
	var errs []error
	deleted := 0
	for _, t := range tasks {
		if err := c.backend.DeleteTask(ctx, t.Key()); err != nil {
			errs = append(errs, fmt.Errorf("delete task %s: %w", t.Key(), err))
			continue
		}
		deleted++
	}
	c.logger.WithFields(log.Fields{"user": c.owner, "deleted": deleted, "failed": len(errs)}).Info("cleared tasks")

	loadErr := c.Load(ctx)
	if len(errs) > 0 {
		c.notify(NoticeError, fmt.Sprintf("Failed to delete %d of %d tasks", len(errs), len(tasks)), "")
		return deleted, errors.Join(append(errs, loadErr)...)
	}
	c.notify(NoticeInfo, fmt.Sprintf("Deleted %d tasks", deleted), "")
	return deleted, loadErr
}

func (c *Controller) record(ctx context.Context, task domain.Task, approval domain.ApprovalType, comments string) {
	if c.recorder == nil {
		return
	}
	d := domain.Decision{
		TaskID:        task.Key(),
		ApplicationID: task.ApplicationID,
		EmployeeName:  task.EmployeeName,
		EmployeeID:    task.EmployeeID,
		Approval:      approval,
		Comments:      comments,
		DecidedBy:     c.owner,
		DecidedAt:     c.now().UTC(),
	}
	if err := c.recorder.RecordDecision(ctx, d); err != nil {
		c.logger.WithError(err).WithField("task", d.TaskID).Warn("failed to journal decision")
	}
}

// failed surfaces a rejected write. A lock conflict also forces a reload so
// the board shows the authoritative state.
func (c *Controller) failed(ctx context.Context, msg, taskID string, err error) {
	if domain.IsApplicationLocked(err) {
		c.notify(NoticeLocked, "Application is already finally approved and can no longer change", taskID)
		_ = c.Load(ctx)
		return
	}
	c.notify(NoticeError, msg, taskID)
}

// bridgeFailed logs an application update failure. The task change stays.
func (c *Controller) bridgeFailed(ctx context.Context, task domain.Task, err error) {
	c.logger.WithError(err).WithFields(log.Fields{
		"user":        c.owner,
		"task":        task.Key(),
		"application": task.ApplicationID,
	}).Warn("application status update failed")
	if domain.IsApplicationLocked(err) {
		c.notify(NoticeLocked, "Application is already finally approved and can no longer change", task.Key())
		_ = c.Load(ctx)
	}
}

func (c *Controller) notify(level NoticeLevel, msg, taskID string) {
	c.notifier.Notify(c.owner, Notice{Level: level, Message: msg, TaskID: taskID, Time: c.now().UTC()})
}
