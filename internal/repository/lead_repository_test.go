package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

func leadRows(lead models.Lead) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "phone", "company", "status", "source", "message",
		"service_type", "budget_label", "timeline_label", "position", "created_at", "updated_at",
	}).AddRow(
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Company, string(lead.Status),
		lead.Source, lead.Message, lead.ServiceType, lead.BudgetLabel, lead.TimelineLabel,
		lead.Position, lead.CreatedAt, lead.UpdatedAt,
	)
}

func TestMoveStageSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	moved := models.Lead{
		ID:       "lead-1",
		Name:     "Acme Intake",
		Email:    "ops@acme.test",
		Status:   models.LeadStatusProposalSent,
		Position: 4,
	}
	mock.ExpectQuery(`UPDATE leads`).
		WithArgs("lead-1", string(models.LeadStatusProposalSent), string(models.LeadStatusQualified)).
		WillReturnRows(leadRows(moved))

	repo := NewLeadRepository(db)
	got, err := repo.MoveStage(context.Background(), "lead-1",
		models.LeadStatusQualified, models.LeadStatusProposalSent)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusProposalSent, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Losing a tail-position race against the unique (status, position) index is
// retried in place rather than surfaced to the caller.
func TestMoveStageRetriesLostPositionClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	moved := models.Lead{
		ID:       "lead-1",
		Name:     "Acme Intake",
		Email:    "ops@acme.test",
		Status:   models.LeadStatusProposalSent,
		Position: 5,
	}
	mock.ExpectQuery(`UPDATE leads`).
		WithArgs("lead-1", string(models.LeadStatusProposalSent), string(models.LeadStatusQualified)).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`UPDATE leads`).
		WithArgs("lead-1", string(models.LeadStatusProposalSent), string(models.LeadStatusQualified)).
		WillReturnRows(leadRows(moved))

	repo := NewLeadRepository(db)
	got, err := repo.MoveStage(context.Background(), "lead-1",
		models.LeadStatusQualified, models.LeadStatusProposalSent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveStageStaleViewConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The CAS finds no row in QUALIFIED: a concurrent move already landed.
	mock.ExpectQuery(`UPDATE leads`).
		WithArgs("lead-1", string(models.LeadStatusProposalSent), string(models.LeadStatusQualified)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	current := models.Lead{ID: "lead-1", Status: models.LeadStatusLost}
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(leadRows(current))

	repo := NewLeadRepository(db)
	_, err = repo.MoveStage(context.Background(), "lead-1",
		models.LeadStatusQualified, models.LeadStatusProposalSent)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveStageDeletedLeadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE leads`).
		WithArgs("lead-1", string(models.LeadStatusConverted), string(models.LeadStatusQualified)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewLeadRepository(db)
	_, err = repo.MoveStage(context.Background(), "lead-1",
		models.LeadStatusQualified, models.LeadStatusConverted)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeadByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewLeadRepository(db)
	_, err = repo.GetLeadByID(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListBoardGroupsByStage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "email", "phone", "company", "status", "source", "message",
		"service_type", "budget_label", "timeline_label", "position", "created_at", "updated_at",
	}).
		AddRow("l1", "First", "a@x.test", "", "", string(models.LeadStatusNew), "", "", "", "", "", 1, now, now).
		AddRow("l2", "Second", "b@x.test", "", "", string(models.LeadStatusNew), "", "", "", "", "", 2, now, now).
		AddRow("l3", "Third", "c@x.test", "", "", string(models.LeadStatusConverted), "", "", "", "", "", 1, now, now)

	mock.ExpectQuery(`FROM leads`).
		WithArgs(string(models.LeadStatusLost)).
		WillReturnRows(rows)

	repo := NewLeadRepository(db)
	board, err := repo.ListBoard(context.Background())
	require.NoError(t, err)
	require.Len(t, board, len(models.PipelineStages))

	assert.Equal(t, models.LeadStatusNew, board[0].Stage)
	require.Len(t, board[0].Leads, 2)
	assert.Equal(t, "l1", board[0].Leads[0].ID)

	// Stages without leads still appear as empty columns.
	assert.Equal(t, models.LeadStatusContacted, board[1].Stage)
	assert.Empty(t, board[1].Leads)

	last := board[len(board)-1]
	assert.Equal(t, models.LeadStatusConverted, last.Stage)
	require.Len(t, last.Leads, 1)
}
