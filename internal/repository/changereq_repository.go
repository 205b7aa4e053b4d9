package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

// CompletionResult reports the outcome of completing a change request,
// including where the hours landed.
type CompletionResult struct {
	Request       models.ChangeRequest `json:"change_request"`
	Plan          *models.MaintenancePlan
	OverAllowance bool
}

type ChangeRequestRepository interface {
	CreateChangeRequest(ctx context.Context, cr models.ChangeRequest) (models.ChangeRequest, error)
	GetChangeRequestByID(ctx context.Context, id string) (models.ChangeRequest, error)
	ListChangeRequestsByProject(ctx context.Context, projectID string) ([]models.ChangeRequest, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ChangeRequestStatus) (models.ChangeRequest, error)
	// Complete finishes an in-progress request and debits its hours against
	// the linked plan's packs and allowance inside a single transaction.
	// The hours_debited_at guard makes retries conflict instead of debiting
	// twice.
	Complete(ctx context.Context, id string, actualHours models.Tenths) (CompletionResult, error)
	CountOpen(ctx context.Context) (int, error)
}

type changeRequestRepository struct {
	db *sql.DB
}

func NewChangeRequestRepository(db *sql.DB) ChangeRequestRepository {
	return &changeRequestRepository{db: db}
}

const changeRequestColumns = `id, description, status, category, priority,
	estimated_hours, actual_hours, project_id, subscription_id, hours_debited_at,
	created_at, updated_at`

func scanChangeRequest(row interface{ Scan(...interface{}) error }) (models.ChangeRequest, error) {
	var cr models.ChangeRequest
	err := row.Scan(
		&cr.ID,
		&cr.Description,
		&cr.Status,
		&cr.Category,
		&cr.Priority,
		&cr.EstimatedHours,
		&cr.ActualHours,
		&cr.ProjectID,
		&cr.SubscriptionID,
		&cr.HoursDebitedAt,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)
	return cr, err
}

func (r *changeRequestRepository) CreateChangeRequest(ctx context.Context, cr models.ChangeRequest) (models.ChangeRequest, error) {
	const query = `
		INSERT INTO change_requests (description, status, category, priority,
			estimated_hours, project_id, subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + changeRequestColumns

	created, err := scanChangeRequest(r.db.QueryRowContext(ctx, query,
		cr.Description, models.ChangeRequestPending, cr.Category, cr.Priority,
		cr.EstimatedHours, cr.ProjectID, cr.SubscriptionID,
	))
	if err != nil {
		return models.ChangeRequest{}, errors.Wrap(err, "insert change request")
	}
	return created, nil
}

func (r *changeRequestRepository) GetChangeRequestByID(ctx context.Context, id string) (models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`

	cr, err := scanChangeRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ChangeRequest{}, apperr.NotFound("change request %s not found", id)
		}
		return models.ChangeRequest{}, errors.Wrap(err, "load change request")
	}
	return cr, nil
}

func (r *changeRequestRepository) ListChangeRequestsByProject(ctx context.Context, projectID string) ([]models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests
		WHERE project_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "query change requests")
	}
	defer rows.Close()

	var out []models.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan change request row")
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (r *changeRequestRepository) TransitionStatus(ctx context.Context, id string, from, to models.ChangeRequestStatus) (models.ChangeRequest, error) {
	const query = `
		UPDATE change_requests
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + changeRequestColumns

	updated, err := scanChangeRequest(r.db.QueryRowContext(ctx, query, id, to, from))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ChangeRequest{}, errors.Wrap(err, "transition change request")
	}

	current, lookupErr := r.GetChangeRequestByID(ctx, id)
	if lookupErr != nil {
		return models.ChangeRequest{}, lookupErr
	}
	return models.ChangeRequest{}, apperr.Conflict(
		"change request %s is %s, not %s; refresh before retrying", id, current.Status, from)
}

func (r *changeRequestRepository) Complete(ctx context.Context, id string, actualHours models.Tenths) (CompletionResult, error) {
	if actualHours < 0 {
		return CompletionResult{}, apperr.Validation("actual hours must not be negative")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, errors.Wrap(err, "begin completion transaction")
	}
	defer tx.Rollback()

	// CAS on status plus the debit guard: a retried completion matches zero
	// rows and never reaches the debit statements below.
	const complete = `
		UPDATE change_requests
		SET status = $2, actual_hours = $3, hours_debited_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4 AND hours_debited_at IS NULL
		RETURNING ` + changeRequestColumns

	cr, err := scanChangeRequest(tx.QueryRowContext(ctx, complete,
		id, models.ChangeRequestCompleted, actualHours, models.ChangeRequestInProgress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CompletionResult{}, r.explainCompleteMiss(ctx, id)
		}
		return CompletionResult{}, errors.Wrap(err, "complete change request")
	}

	result := CompletionResult{Request: cr}

	if cr.SubscriptionID != nil && actualHours > 0 {
		plan, overAllowance, err := debitSubscriptionHours(ctx, tx, *cr.SubscriptionID, actualHours)
		if err != nil {
			return CompletionResult{}, err
		}
		result.Plan = &plan
		result.OverAllowance = overAllowance
	}

	if err := tx.Commit(); err != nil {
		return CompletionResult{}, errors.Wrap(err, "commit completion")
	}
	return result, nil
}

func (r *changeRequestRepository) explainCompleteMiss(ctx context.Context, id string) error {
	current, err := r.GetChangeRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Debited() {
		return apperr.Conflict("change request %s already debited its hours", id)
	}
	return apperr.Conflict(
		"change request %s is %s; only in-progress requests can be completed", id, current.Status)
}

// debitSubscriptionHours charges hours to the plan's hour packs first,
// soonest-expiring first, then books any remainder against the plan's
// included allowance. Pack balances never go below zero; plan overage is
// allowed and reported.
func debitSubscriptionHours(ctx context.Context, tx *sql.Tx, planID string, hours models.Tenths) (models.MaintenancePlan, bool, error) {
	// Lock the plan row first so concurrent completions serialize.
	var plan models.MaintenancePlan
	err := tx.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM maintenance_plans WHERE id = $1 FOR UPDATE`,
		planID,
	).Scan(
		&plan.ID, &plan.Tier, &plan.MonthlyPriceCents, &plan.Status,
		&plan.HoursIncluded, &plan.HoursUsed, &plan.ProjectID,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MaintenancePlan{}, false, apperr.NotFound("maintenance plan %s not found", planID)
		}
		return models.MaintenancePlan{}, false, errors.Wrap(err, "lock maintenance plan")
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, hours_remaining FROM hour_packs
		WHERE plan_id = $1
			AND hours_remaining > 0
			AND (expires_at IS NULL OR expires_at > now())
		ORDER BY never_expires ASC, expires_at ASC NULLS LAST, purchased_at ASC
		FOR UPDATE`, planID)
	if err != nil {
		return models.MaintenancePlan{}, false, errors.Wrap(err, "lock hour packs")
	}

	type packBalance struct {
		id        string
		remaining models.Tenths
	}
	var packs []packBalance
	for rows.Next() {
		var p packBalance
		if err := rows.Scan(&p.id, &p.remaining); err != nil {
			rows.Close()
			return models.MaintenancePlan{}, false, errors.Wrap(err, "scan pack balance")
		}
		packs = append(packs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.MaintenancePlan{}, false, err
	}

	left := hours
	for _, pack := range packs {
		if left <= 0 {
			break
		}
		take := pack.remaining
		if take > left {
			take = left
		}
		// The balance guard keeps the 0 <= hours_remaining invariant even
		// if a competing debit slipped past the row locks.
		result, err := tx.ExecContext(ctx, `
			UPDATE hour_packs
			SET hours_remaining = hours_remaining - $2
			WHERE id = $1 AND hours_remaining >= $2`, pack.id, take)
		if err != nil {
			return models.MaintenancePlan{}, false, errors.Wrap(err, "debit hour pack")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return models.MaintenancePlan{}, false, err
		}
		if affected == 0 {
			return models.MaintenancePlan{}, false, apperr.Conflict(
				"hour pack %s balance changed; refresh and retry", pack.id)
		}
		left -= take
	}

	if left > 0 {
		err := tx.QueryRowContext(ctx, `
			UPDATE maintenance_plans
			SET hours_used = hours_used + $2, updated_at = now()
			WHERE id = $1
			RETURNING `+planColumns, planID, left,
		).Scan(
			&plan.ID, &plan.Tier, &plan.MonthlyPriceCents, &plan.Status,
			&plan.HoursIncluded, &plan.HoursUsed, &plan.ProjectID,
			&plan.CreatedAt, &plan.UpdatedAt,
		)
		if err != nil {
			return models.MaintenancePlan{}, false, errors.Wrap(err, "debit plan allowance")
		}
	}

	return plan, plan.OverAllowance(), nil
}

func (r *changeRequestRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM change_requests
		WHERE status NOT IN ($1, $2)`,
		models.ChangeRequestCompleted, models.ChangeRequestRejected,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count open change requests")
	}
	return n, nil
}
