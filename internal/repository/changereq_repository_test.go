package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

func changeRequestRows(cr models.ChangeRequest) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "description", "status", "category", "priority",
		"estimated_hours", "actual_hours", "project_id", "subscription_id",
		"hours_debited_at", "created_at", "updated_at",
	})
	var actual interface{}
	if cr.ActualHours != nil {
		actual = int64(*cr.ActualHours)
	}
	var subID interface{}
	if cr.SubscriptionID != nil {
		subID = *cr.SubscriptionID
	}
	var debitedAt interface{}
	if cr.HoursDebitedAt != nil {
		debitedAt = *cr.HoursDebitedAt
	}
	rows.AddRow(cr.ID, cr.Description, string(cr.Status), cr.Category, cr.Priority,
		int64(cr.EstimatedHours), actual, cr.ProjectID, subID, debitedAt,
		cr.CreatedAt, cr.UpdatedAt)
	return rows
}

func planRow(plan models.MaintenancePlan) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tier", "monthly_price_cents", "status", "hours_included",
		"hours_used", "project_id", "created_at", "updated_at",
	}).AddRow(plan.ID, string(plan.Tier), plan.MonthlyPriceCents, string(plan.Status),
		int64(plan.HoursIncluded), int64(plan.HoursUsed), plan.ProjectID,
		plan.CreatedAt, plan.UpdatedAt)
}

func TestCompleteDebitsPacksThenPlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	subID := "plan-1"
	now := time.Now()
	debit := models.TenthsFromHours(5) // 5h: 3h from the pack, 2h to the plan
	completed := models.ChangeRequest{
		ID:             "cr-1",
		Status:         models.ChangeRequestCompleted,
		SubscriptionID: &subID,
		HoursDebitedAt: &now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE change_requests`).
		WithArgs("cr-1", string(models.ChangeRequestCompleted), int64(debit), string(models.ChangeRequestInProgress)).
		WillReturnRows(changeRequestRows(completed))
	mock.ExpectQuery(`FROM maintenance_plans WHERE id = \$1 FOR UPDATE`).
		WithArgs("plan-1").
		WillReturnRows(planRow(models.MaintenancePlan{
			ID: "plan-1", Tier: models.PlanTierDirector, Status: models.PlanStatusActive,
			HoursIncluded: models.TenthsFromHours(10), HoursUsed: models.TenthsFromHours(9),
		}))
	mock.ExpectQuery(`SELECT id, hours_remaining FROM hour_packs`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hours_remaining"}).
			AddRow("pack-1", int64(models.TenthsFromHours(3))))
	mock.ExpectExec(`UPDATE hour_packs`).
		WithArgs("pack-1", int64(models.TenthsFromHours(3))).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE maintenance_plans`).
		WithArgs("plan-1", int64(models.TenthsFromHours(2))).
		WillReturnRows(planRow(models.MaintenancePlan{
			ID: "plan-1", Tier: models.PlanTierDirector, Status: models.PlanStatusActive,
			HoursIncluded: models.TenthsFromHours(10), HoursUsed: models.TenthsFromHours(11),
		}))
	mock.ExpectCommit()

	repo := NewChangeRequestRepository(db)
	result, err := repo.Complete(context.Background(), "cr-1", debit)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestCompleted, result.Request.Status)
	require.NotNil(t, result.Plan)
	assert.True(t, result.OverAllowance, "11h used of 10h included is overage")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTwiceDebitsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Retry: the guarded CAS matches nothing, the debit statements never
	// run, and the caller gets Conflict.
	debitedAt := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE change_requests`).
		WithArgs("cr-1", string(models.ChangeRequestCompleted), int64(models.TenthsFromHours(2)), string(models.ChangeRequestInProgress)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM change_requests WHERE id = \$1`).
		WithArgs("cr-1").
		WillReturnRows(changeRequestRows(models.ChangeRequest{
			ID:             "cr-1",
			Status:         models.ChangeRequestCompleted,
			HoursDebitedAt: &debitedAt,
		}))
	mock.ExpectRollback()

	repo := NewChangeRequestRepository(db)
	_, err = repo.Complete(context.Background(), "cr-1", models.TenthsFromHours(2))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already debited")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRejectsNegativeHours(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChangeRequestRepository(db)
	_, err = repo.Complete(context.Background(), "cr-1", models.TenthsFromHours(-1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCompleteWithoutSubscriptionSkipsDebit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	completed := models.ChangeRequest{
		ID:             "cr-2",
		Status:         models.ChangeRequestCompleted,
		HoursDebitedAt: &now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE change_requests`).
		WithArgs("cr-2", string(models.ChangeRequestCompleted), int64(models.TenthsFromHours(4)), string(models.ChangeRequestInProgress)).
		WillReturnRows(changeRequestRows(completed))
	mock.ExpectCommit()

	repo := NewChangeRequestRepository(db)
	result, err := repo.Complete(context.Background(), "cr-2", models.TenthsFromHours(4))
	require.NoError(t, err)
	assert.Nil(t, result.Plan)
	assert.False(t, result.OverAllowance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletePackBalanceRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	subID := "plan-1"
	now := time.Now()
	completed := models.ChangeRequest{
		ID:             "cr-3",
		Status:         models.ChangeRequestCompleted,
		SubscriptionID: &subID,
		HoursDebitedAt: &now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE change_requests`).
		WithArgs("cr-3", string(models.ChangeRequestCompleted), int64(models.TenthsFromHours(1)), string(models.ChangeRequestInProgress)).
		WillReturnRows(changeRequestRows(completed))
	mock.ExpectQuery(`FROM maintenance_plans WHERE id = \$1 FOR UPDATE`).
		WithArgs("plan-1").
		WillReturnRows(planRow(models.MaintenancePlan{ID: "plan-1", Status: models.PlanStatusActive}))
	mock.ExpectQuery(`SELECT id, hours_remaining FROM hour_packs`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hours_remaining"}).
			AddRow("pack-1", int64(models.TenthsFromHours(1))))
	// Balance guard misses: the transaction aborts instead of clamping.
	mock.ExpectExec(`UPDATE hour_packs`).
		WithArgs("pack-1", int64(models.TenthsFromHours(1))).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewChangeRequestRepository(db)
	_, err = repo.Complete(context.Background(), "cr-3", models.TenthsFromHours(1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
