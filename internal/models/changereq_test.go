package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChangeRequestTransitions(t *testing.T) {
	assert.True(t, CanTransitionChangeRequest(ChangeRequestPending, ChangeRequestApproved))
	assert.True(t, CanTransitionChangeRequest(ChangeRequestPending, ChangeRequestRejected))
	assert.True(t, CanTransitionChangeRequest(ChangeRequestApproved, ChangeRequestInProgress))
	assert.True(t, CanTransitionChangeRequest(ChangeRequestApproved, ChangeRequestRejected))

	// Completion is reserved for the debiting path.
	assert.False(t, CanTransitionChangeRequest(ChangeRequestInProgress, ChangeRequestCompleted))

	for _, terminal := range []ChangeRequestStatus{ChangeRequestCompleted, ChangeRequestRejected} {
		for _, to := range []ChangeRequestStatus{
			ChangeRequestPending, ChangeRequestApproved,
			ChangeRequestInProgress, ChangeRequestCompleted, ChangeRequestRejected,
		} {
			assert.False(t, CanTransitionChangeRequest(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestChangeRequestDebited(t *testing.T) {
	cr := ChangeRequest{}
	assert.False(t, cr.Debited())

	at := time.Now()
	cr.HoursDebitedAt = &at
	assert.True(t, cr.Debited())
}
