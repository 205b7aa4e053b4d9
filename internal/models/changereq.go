package models

import "time"

type ChangeRequestStatus string

const (
	ChangeRequestPending    ChangeRequestStatus = "pending"
	ChangeRequestApproved   ChangeRequestStatus = "approved"
	ChangeRequestInProgress ChangeRequestStatus = "in_progress"
	ChangeRequestCompleted  ChangeRequestStatus = "completed"
	ChangeRequestRejected   ChangeRequestStatus = "rejected"
)

var changeRequestTransitions = map[ChangeRequestStatus][]ChangeRequestStatus{
	ChangeRequestPending:  {ChangeRequestApproved, ChangeRequestRejected},
	ChangeRequestApproved: {ChangeRequestInProgress, ChangeRequestRejected},
	// in_progress -> completed goes through Complete, which also debits
	// hours; it is not reachable via the plain status endpoint.
}

func CanTransitionChangeRequest(from, to ChangeRequestStatus) bool {
	for _, next := range changeRequestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ChangeRequest struct {
	ID             string              `json:"id" db:"id"`
	Description    string              `json:"description" db:"description"`
	Status         ChangeRequestStatus `json:"status" db:"status"`
	Category       string              `json:"category,omitempty" db:"category"`
	Priority       string              `json:"priority,omitempty" db:"priority"`
	EstimatedHours Tenths              `json:"-" db:"estimated_hours"`
	ActualHours    *Tenths             `json:"-" db:"actual_hours"`
	ProjectID      string              `json:"project_id" db:"project_id"`
	SubscriptionID *string             `json:"subscription_id,omitempty" db:"subscription_id"`
	HoursDebitedAt *time.Time          `json:"hours_debited_at,omitempty" db:"hours_debited_at"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// Debited reports whether the request's hours have already been charged
// against a plan or pack. A completed request debits exactly once.
func (c ChangeRequest) Debited() bool {
	return c.HoursDebitedAt != nil
}
