package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type PlanRepository interface {
	CreatePlan(ctx context.Context, plan models.MaintenancePlan) (models.MaintenancePlan, error)
	GetPlanByID(ctx context.Context, id string) (models.MaintenancePlan, error)
	GetPlanByProject(ctx context.Context, projectID string) (models.MaintenancePlan, error)
	// TransitionStatus compare-and-swaps the plan status. CANCELLED is
	// terminal; a miss reports the current status as Conflict.
	TransitionStatus(ctx context.Context, id string, from, to models.PlanStatus) (models.MaintenancePlan, error)
	CreatePack(ctx context.Context, pack models.HourPack) (models.HourPack, error)
	ListPacksByPlan(ctx context.Context, planID string) ([]models.HourPack, error)
	CountActivePlans(ctx context.Context) (int, error)
	// ListPacksEnteringExpiryWindow returns packs newly inside the
	// expiring-soon window that have not been flagged yet, marking them
	// flagged in the same statement.
	ListPacksEnteringExpiryWindow(ctx context.Context) ([]models.HourPack, error)
}

type planRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) PlanRepository {
	return &planRepository{db: db}
}

const planColumns = `id, tier, monthly_price_cents, status, hours_included,
	hours_used, project_id, created_at, updated_at`

func scanPlan(row interface{ Scan(...interface{}) error }) (models.MaintenancePlan, error) {
	var p models.MaintenancePlan
	err := row.Scan(
		&p.ID,
		&p.Tier,
		&p.MonthlyPriceCents,
		&p.Status,
		&p.HoursIncluded,
		&p.HoursUsed,
		&p.ProjectID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

const packColumns = `id, plan_id, pack_type, hours, hours_remaining, cost_cents,
	purchased_at, expires_at, never_expires`

func scanPack(row interface{ Scan(...interface{}) error }) (models.HourPack, error) {
	var p models.HourPack
	err := row.Scan(
		&p.ID,
		&p.PlanID,
		&p.PackType,
		&p.Hours,
		&p.HoursRemaining,
		&p.CostCents,
		&p.PurchasedAt,
		&p.ExpiresAt,
		&p.NeverExpires,
	)
	return p, err
}

func (r *planRepository) CreatePlan(ctx context.Context, plan models.MaintenancePlan) (models.MaintenancePlan, error) {
	const query = `
		INSERT INTO maintenance_plans (tier, monthly_price_cents, status,
			hours_included, hours_used, project_id)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING ` + planColumns

	created, err := scanPlan(r.db.QueryRowContext(ctx, query,
		plan.Tier, plan.MonthlyPriceCents, models.PlanStatusActive,
		plan.HoursIncluded, plan.ProjectID,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.MaintenancePlan{}, apperr.Conflict(
				"project %s already has a maintenance plan", plan.ProjectID)
		}
		return models.MaintenancePlan{}, errors.Wrap(err, "insert maintenance plan")
	}
	return created, nil
}

func (r *planRepository) GetPlanByID(ctx context.Context, id string) (models.MaintenancePlan, error) {
	query := `SELECT ` + planColumns + ` FROM maintenance_plans WHERE id = $1`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MaintenancePlan{}, apperr.NotFound("maintenance plan %s not found", id)
		}
		return models.MaintenancePlan{}, errors.Wrap(err, "load maintenance plan")
	}
	return plan, nil
}

func (r *planRepository) GetPlanByProject(ctx context.Context, projectID string) (models.MaintenancePlan, error) {
	query := `SELECT ` + planColumns + ` FROM maintenance_plans WHERE project_id = $1`

	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MaintenancePlan{}, apperr.NotFound("project %s has no maintenance plan", projectID)
		}
		return models.MaintenancePlan{}, errors.Wrap(err, "load maintenance plan by project")
	}
	return plan, nil
}

func (r *planRepository) TransitionStatus(ctx context.Context, id string, from, to models.PlanStatus) (models.MaintenancePlan, error) {
	const query = `
		UPDATE maintenance_plans
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + planColumns

	updated, err := scanPlan(r.db.QueryRowContext(ctx, query, id, to, from))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.MaintenancePlan{}, errors.Wrap(err, "transition maintenance plan")
	}

	current, lookupErr := r.GetPlanByID(ctx, id)
	if lookupErr != nil {
		return models.MaintenancePlan{}, lookupErr
	}
	return models.MaintenancePlan{}, apperr.Conflict(
		"maintenance plan %s is %s, not %s", id, current.Status, from)
}

func (r *planRepository) CreatePack(ctx context.Context, pack models.HourPack) (models.HourPack, error) {
	const query = `
		INSERT INTO hour_packs (plan_id, pack_type, hours, hours_remaining,
			cost_cents, expires_at, never_expires)
		VALUES ($1, $2, $3, $3, $4, $5, $6)
		RETURNING ` + packColumns

	created, err := scanPack(r.db.QueryRowContext(ctx, query,
		pack.PlanID, pack.PackType, pack.Hours, pack.CostCents,
		pack.ExpiresAt, pack.NeverExpires,
	))
	if err != nil {
		return models.HourPack{}, errors.Wrap(err, "insert hour pack")
	}
	return created, nil
}

func (r *planRepository) ListPacksByPlan(ctx context.Context, planID string) ([]models.HourPack, error) {
	// Soonest-expiring first, matching the consumption order.
	query := `SELECT ` + packColumns + ` FROM hour_packs
		WHERE plan_id = $1
		ORDER BY never_expires ASC, expires_at ASC NULLS LAST, purchased_at ASC`

	rows, err := r.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, errors.Wrap(err, "query hour packs")
	}
	defer rows.Close()

	var packs []models.HourPack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan hour pack row")
		}
		packs = append(packs, pack)
	}
	return packs, rows.Err()
}

func (r *planRepository) CountActivePlans(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM maintenance_plans WHERE status = $1`,
		models.PlanStatusActive,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count active plans")
	}
	return n, nil
}

func (r *planRepository) ListPacksEnteringExpiryWindow(ctx context.Context) ([]models.HourPack, error) {
	query := `
		UPDATE hour_packs
		SET expiry_notified_at = now()
		WHERE expiry_notified_at IS NULL
			AND never_expires = false
			AND expires_at IS NOT NULL
			AND expires_at > now()
			AND expires_at < now() + interval '7 days'
			AND hours_remaining > 0
		RETURNING ` + packColumns

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "flag expiring hour packs")
	}
	defer rows.Close()

	var packs []models.HourPack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan expiring pack row")
		}
		packs = append(packs, pack)
	}
	return packs, rows.Err()
}
