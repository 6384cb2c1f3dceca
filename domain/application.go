package domain

// ApplicationStatus is the status of the external onboarding application.
type ApplicationStatus string

const (
	ApplicationSubmitted     ApplicationStatus = "submitted"
	ApplicationUnderReview   ApplicationStatus = "under_review"
	ApplicationInReviewFinal ApplicationStatus = "in_review_final"
	ApplicationApproved      ApplicationStatus = "approved"
	ApplicationRejected      ApplicationStatus = "rejected"
)

// Application is the subset of the backend application record the board reads.
type Application struct {
	ID             string            `json:"_id"`
	Status         ApplicationStatus `json:"status"`
	ReviewComments string            `json:"reviewComments,omitempty"`
}

// ApplicationStatusUpdate is the body of the application status mutation.
type ApplicationStatusUpdate struct {
	Status         ApplicationStatus `json:"status"`
	ReviewComments string            `json:"reviewComments,omitempty"`
}

// ApplicationStatusFor maps a task status to the application status the
// bridge propagates. Rejection has no entry: it is sent directly.
func ApplicationStatusFor(s Status) (ApplicationStatus, bool) {
	switch s {
	case StatusTodo:
		return ApplicationSubmitted, true
	case StatusInProgress:
		return ApplicationUnderReview, true
	case StatusInReview:
		return ApplicationInReviewFinal, true
	case StatusComplete:
		return ApplicationApproved, true
	}
	return "", false
}
