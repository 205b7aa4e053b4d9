package models

import "time"

type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "NEW"
	LeadStatusContacted    LeadStatus = "CONTACTED"
	LeadStatusQualified    LeadStatus = "QUALIFIED"
	LeadStatusProposalSent LeadStatus = "PROPOSAL_SENT"
	LeadStatusConverted    LeadStatus = "CONVERTED"
	LeadStatusLost         LeadStatus = "LOST"
)

// PipelineStages lists the board columns in funnel order. LOST leads are
// tracked but not shown as a column, matching the drag-and-drop board.
var PipelineStages = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusProposalSent,
	LeadStatusConverted,
}

func IsValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified,
		LeadStatusProposalSent, LeadStatusConverted, LeadStatusLost:
		return true
	}
	return false
}

type Lead struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	Phone         string     `json:"phone,omitempty" db:"phone"`
	Company       string     `json:"company,omitempty" db:"company"`
	Status        LeadStatus `json:"status" db:"status"`
	Source        string     `json:"source,omitempty" db:"source"`
	Message       string     `json:"message,omitempty" db:"message"`
	ServiceType   string     `json:"service_type,omitempty" db:"service_type"`
	BudgetLabel   string     `json:"budget_label,omitempty" db:"budget_label"`
	TimelineLabel string     `json:"timeline_label,omitempty" db:"timeline_label"`
	Position      int64      `json:"position" db:"position"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the lead has left the pipeline. Terminal leads
// reject any further stage moves.
func (l Lead) IsTerminal() bool {
	return l.Status == LeadStatusConverted || l.Status == LeadStatusLost
}

// CanMoveTo validates a stage transition without touching storage. The
// stale-drag check (persisted stage vs. the caller's assumed stage) lives in
// the repository, where it can be enforced atomically.
func (l Lead) CanMoveTo(to LeadStatus) bool {
	if l.IsTerminal() {
		return false
	}
	if !IsValidLeadStatus(to) || to == l.Status {
		return false
	}
	return true
}

// PipelineColumn is one stage of the board with its leads in display order.
type PipelineColumn struct {
	Stage LeadStatus `json:"stage"`
	Leads []Lead     `json:"leads"`
}
