package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanEditOrDelete(t *testing.T) {
	assert.True(t, ProjectRequest{Status: RequestStatusDraft}.CanEditOrDelete())
	assert.True(t, ProjectRequest{Status: RequestStatusSubmitted}.CanEditOrDelete())

	for _, status := range []RequestStatus{
		RequestStatusReviewing, RequestStatusNeedsInfo,
		RequestStatusApproved, RequestStatusRejected, RequestStatusArchived,
	} {
		assert.False(t, ProjectRequest{Status: status}.CanEditOrDelete(), string(status))
	}
}

func TestCanEditOrDeleteWithProjectAttached(t *testing.T) {
	projectID := "proj-1"
	req := ProjectRequest{Status: RequestStatusApproved, ProjectID: &projectID}
	assert.False(t, req.CanEditOrDelete())

	// A project reference locks the request even in an otherwise editable
	// status.
	req = ProjectRequest{Status: RequestStatusSubmitted, ProjectID: &projectID}
	assert.False(t, req.CanEditOrDelete())
}

func TestRequestTransitions(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{RequestStatusSubmitted, RequestStatusReviewing},
		{RequestStatusSubmitted, RequestStatusNeedsInfo},
		{RequestStatusReviewing, RequestStatusApproved},
		{RequestStatusReviewing, RequestStatusRejected},
		{RequestStatusNeedsInfo, RequestStatusReviewing},
		{RequestStatusApproved, RequestStatusArchived},
		{RequestStatusRejected, RequestStatusArchived},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionRequest(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to RequestStatus }{
		{RequestStatusDraft, RequestStatusReviewing}, // drafts go through Submit
		{RequestStatusApproved, RequestStatusRejected},
		{RequestStatusRejected, RequestStatusApproved},
		{RequestStatusArchived, RequestStatusReviewing},
		{RequestStatusSubmitted, RequestStatusApproved}, // review first
	}
	for _, tc := range denied {
		assert.False(t, CanTransitionRequest(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

// The free-text timeline label a client types is unrelated to the derived
// milestone sequence; both live on the same struct.
func TestTimelineLabelIndependentOfMilestones(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	req := ProjectRequest{
		Status:    RequestStatusDraft,
		Timeline:  "2-3 months",
		CreatedAt: created,
		UpdatedAt: created,
	}

	assert.Equal(t, "2-3 months", req.Timeline)
	require.Len(t, req.Milestones(), 4)
}

func TestTimelineDraft(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	req := ProjectRequest{Status: RequestStatusDraft, CreatedAt: created, UpdatedAt: created}

	timeline := req.Milestones()
	require.Len(t, timeline, 4)

	assert.True(t, timeline[0].Completed)
	assert.Equal(t, created, *timeline[0].Date)
	assert.False(t, timeline[1].Completed)
	assert.Nil(t, timeline[1].Date)
	assert.False(t, timeline[2].Completed)
	assert.False(t, timeline[3].Completed)
}

func TestTimelineForwardProgress(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(72 * time.Hour)

	// NEEDS_INFO still counts review as reached.
	req := ProjectRequest{Status: RequestStatusNeedsInfo, CreatedAt: created, UpdatedAt: updated}
	timeline := req.Milestones()
	require.Len(t, timeline, 4)
	assert.True(t, timeline[1].Completed)
	assert.True(t, timeline[2].Completed)
	assert.False(t, timeline[3].Completed)

	req.Status = RequestStatusRejected
	timeline = req.Milestones()
	assert.True(t, timeline[3].Completed)
	assert.Equal(t, "Rejected", timeline[3].Label)
}

func TestTimelineWithProject(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	projectAt := created.Add(10 * 24 * time.Hour)
	projectID := "proj-1"

	req := ProjectRequest{
		Status:    RequestStatusApproved,
		CreatedAt: created,
		UpdatedAt: projectAt,
		ProjectID: &projectID,
		ProjectAt: &projectAt,
	}

	timeline := req.Milestones()
	require.Len(t, timeline, 5)
	last := timeline[len(timeline)-1]
	assert.Equal(t, "Project started", last.Label)
	assert.True(t, last.Completed)
	assert.Equal(t, projectAt, *last.Date)

	// Derivation is pure: recomputing yields the same milestones.
	assert.Equal(t, timeline, req.Milestones())
}
