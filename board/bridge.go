package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"onboarding-board/domain"
)

// ApplicationBackend mutates onboarding application records.
type ApplicationBackend interface {
	UpdateApplicationStatus(ctx context.Context, applicationID string, upd domain.ApplicationStatusUpdate) error
	FinalApproveApplication(ctx context.Context, applicationID, comments string) error
}

// Bridge propagates task column changes to the linked application. Calls are
// best-effort: no retries and no idempotency key.
type Bridge struct {
	apps   ApplicationBackend
	logger *log.Logger
}

func NewBridge(apps ApplicationBackend, logger *log.Logger) *Bridge {
	return &Bridge{apps: apps, logger: logger}
}

// Sync sends the application status mapped from the task's new status. A
// Complete task goes through the final-approve endpoint.
func (b *Bridge) Sync(ctx context.Context, task domain.Task, comments string) error {
	if task.ApplicationID == "" {
		return nil
	}
	status, ok := domain.ApplicationStatusFor(task.Status)
	if !ok {
		return fmt.Errorf("no application status for task status %q", task.Status)
	}
	b.logger.WithFields(log.Fields{
		"task":        task.Key(),
		"application": task.ApplicationID,
		"status":      status,
	}).Debug("syncing application status")

	if status == domain.ApplicationApproved {
		return b.apps.FinalApproveApplication(ctx, task.ApplicationID, comments)
	}
	return b.apps.UpdateApplicationStatus(ctx, task.ApplicationID, domain.ApplicationStatusUpdate{Status: status})
}

// Reject marks the linked application rejected with the given comments.
func (b *Bridge) Reject(ctx context.Context, task domain.Task, comments string) error {
	if task.ApplicationID == "" {
		return nil
	}
	b.logger.WithFields(log.Fields{
		"task":        task.Key(),
		"application": task.ApplicationID,
	}).Debug("rejecting application")
	return b.apps.UpdateApplicationStatus(ctx, task.ApplicationID, domain.ApplicationStatusUpdate{
		Status:         domain.ApplicationRejected,
		ReviewComments: comments,
	})
}
