package api

import (
	"context"

	"onboarding-board/board"
	"onboarding-board/domain"
	"onboarding-board/events"
)

// Sessions hands out the board controller of a user.
type Sessions interface {
	Get(ctx context.Context, userID string) (*board.Controller, error)
	// Drop forgets the user's controller; the next Get loads a fresh one.
	Drop(userID string)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// TaskCreator creates onboarding tasks on the HR backend.
type TaskCreator interface {
	CreateOnboardingTask(ctx context.Context, in domain.NewOnboardingTask) (domain.Task, error)
}

// DecisionLog lists journaled final decisions.
type DecisionLog interface {
	ListDecisions(ctx context.Context, applicationID string) ([]domain.Decision, error)
}

// Guard rejects a control while the same user's previous use of it is still
// running.
type Guard interface {
	// Acquire returns true and a holder token when the control was free and
	// is now held.
	Acquire(ctx context.Context, userID, control string) (token string, ok bool, err error)
	// Release frees the control if token still holds it.
	Release(ctx context.Context, userID, control, token string) error
}

// Services are the optional collaborators of the HTTP layer. Nil members
// disable the routes or checks that need them.
type Services struct {
	Creator   TaskCreator
	Publisher events.Publisher
	Decisions DecisionLog
	Guard     Guard
	Stream    *StreamBroker
}
