package models

import "time"

type RequestStatus string

const (
	RequestStatusDraft     RequestStatus = "DRAFT"
	RequestStatusSubmitted RequestStatus = "SUBMITTED"
	RequestStatusReviewing RequestStatus = "REVIEWING"
	RequestStatusNeedsInfo RequestStatus = "NEEDS_INFO"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusArchived  RequestStatus = "ARCHIVED"
)

// requestTransitions holds the staff-side transition map. The client-side
// DRAFT -> SUBMITTED move goes through Submit, not this table.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusSubmitted: {RequestStatusReviewing, RequestStatusNeedsInfo},
	RequestStatusReviewing: {RequestStatusNeedsInfo, RequestStatusApproved, RequestStatusRejected},
	RequestStatusNeedsInfo: {RequestStatusReviewing, RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved:  {RequestStatusArchived},
	RequestStatusRejected:  {RequestStatusArchived},
}

// CanTransitionRequest reports whether staff may move a request between the
// two statuses.
func CanTransitionRequest(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ProjectRequest struct {
	ID           string        `json:"id" db:"id"`
	Title        string        `json:"title" db:"title"`
	Description  string        `json:"description" db:"description"`
	Status       RequestStatus `json:"status" db:"status"`
	ContactEmail string        `json:"contact_email" db:"contact_email"`
	Company      string        `json:"company,omitempty" db:"company"`
	Budget       string        `json:"budget,omitempty" db:"budget"`
	Timeline     string        `json:"timeline,omitempty" db:"timeline"`
	Services     []string      `json:"services" db:"services"`
	Notes        string        `json:"notes,omitempty" db:"notes"`
	OwnerID      string        `json:"owner_id" db:"owner_id"`
	ProjectID    *string       `json:"project_id,omitempty" db:"project_id"`
	ProjectAt    *time.Time    `json:"project_created_at,omitempty" db:"project_created_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// CanEditOrDelete is the authoritative rule for client-side mutation: only
// while the request sits in DRAFT or SUBMITTED and no project has been
// attached. The UI applies the same rule, but only as a hint.
func (r ProjectRequest) CanEditOrDelete() bool {
	if r.ProjectID != nil {
		return false
	}
	return r.Status == RequestStatusDraft || r.Status == RequestStatusSubmitted
}

// Milestone is one entry of the derived status timeline.
type Milestone struct {
	Label     string     `json:"label"`
	Date      *time.Time `json:"date,omitempty"`
	Completed bool       `json:"completed"`
}

// reviewedStatuses is the forward-progress set: once the request has reached
// any of these, the "In review" milestone counts as completed.
var reviewedStatuses = map[RequestStatus]bool{
	RequestStatusReviewing: true,
	RequestStatusNeedsInfo: true,
	RequestStatusApproved:  true,
	RequestStatusRejected:  true,
	RequestStatusArchived:  true,
}

// decidedStatuses marks the "Decision" milestone completed.
var decidedStatuses = map[RequestStatus]bool{
	RequestStatusApproved: true,
	RequestStatusRejected: true,
	RequestStatusArchived: true,
}

// Milestones derives the display timeline from persisted fields alone. It is
// recomputed on every read and never stored.
func (r ProjectRequest) Milestones() []Milestone {
	submitted := r.Status != RequestStatusDraft

	milestones := []Milestone{
		{Label: "Request created", Date: timePtr(r.CreatedAt), Completed: true},
	}

	m := Milestone{Label: "Submitted", Completed: submitted}
	if submitted {
		// The submission instant is not stored separately; the last update
		// before review began is the closest persisted approximation.
		m.Date = timePtr(r.UpdatedAt)
	}
	milestones = append(milestones, m)

	m = Milestone{Label: "In review", Completed: reviewedStatuses[r.Status]}
	if m.Completed {
		m.Date = timePtr(r.UpdatedAt)
	}
	milestones = append(milestones, m)

	decided := decidedStatuses[r.Status]
	label := "Decision"
	switch r.Status {
	case RequestStatusApproved:
		label = "Approved"
	case RequestStatusRejected:
		label = "Rejected"
	case RequestStatusArchived:
		label = "Archived"
	}
	m = Milestone{Label: label, Completed: decided}
	if decided {
		m.Date = timePtr(r.UpdatedAt)
	}
	milestones = append(milestones, m)

	if r.ProjectID != nil {
		milestones = append(milestones, Milestone{
			Label:     "Project started",
			Date:      r.ProjectAt,
			Completed: true,
		})
	}

	return milestones
}

func timePtr(t time.Time) *time.Time { return &t }
