package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type LeadRepository interface {
	CreateLead(ctx context.Context, lead models.Lead) (models.Lead, error)
	GetLeadByID(ctx context.Context, id string) (models.Lead, error)
	ListBoard(ctx context.Context) ([]models.PipelineColumn, error)
	UpdateLead(ctx context.Context, lead models.Lead) (models.Lead, error)
	DeleteLead(ctx context.Context, id string) error
	// MoveStage applies the stage transition with a compare-and-swap on the
	// persisted stage. A stale caller view surfaces as Conflict.
	MoveStage(ctx context.Context, id string, from, to models.LeadStatus) (models.Lead, error)
	CountsByStage(ctx context.Context) ([]models.PipelineStageCount, error)
}

type leadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{db: db}
}

const leadColumns = `id, name, email, phone, company, status, source, message,
	service_type, budget_label, timeline_label, position, created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }) (models.Lead, error) {
	var l models.Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.Company,
		&l.Status,
		&l.Source,
		&l.Message,
		&l.ServiceType,
		&l.BudgetLabel,
		&l.TimelineLabel,
		&l.Position,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

// CreateLead inserts an intake lead at the tail of its stage column. Two
// concurrent intakes can both read the same MAX(position); the unique
// (status, position) index rejects the loser, which recomputes and retries.
func (r *leadRepository) CreateLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	const query = `
		INSERT INTO leads (name, email, phone, company, status, source, message,
			service_type, budget_label, timeline_label, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM leads WHERE status = $5))
		RETURNING ` + leadColumns

	for attempt := 1; ; attempt++ {
		created, err := scanLead(r.db.QueryRowContext(ctx, query,
			lead.Name, lead.Email, lead.Phone, lead.Company, lead.Status,
			lead.Source, lead.Message, lead.ServiceType, lead.BudgetLabel, lead.TimelineLabel,
		))
		if err == nil {
			return created, nil
		}
		if isUniqueViolation(err) && attempt < claimAttempts {
			continue
		}
		return models.Lead{}, errors.Wrap(err, "insert lead")
	}
}

func (r *leadRepository) GetLeadByID(ctx context.Context, id string) (models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Lead{}, apperr.NotFound("lead %s not found", id)
		}
		return models.Lead{}, errors.Wrap(err, "load lead")
	}
	return lead, nil
}

func (r *leadRepository) ListBoard(ctx context.Context) ([]models.PipelineColumn, error) {
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE status <> $1
		ORDER BY position ASC, created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.LeadStatusLost)
	if err != nil {
		return nil, errors.Wrap(err, "query pipeline board")
	}
	defer rows.Close()

	byStage := make(map[models.LeadStatus][]models.Lead)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan lead row")
		}
		byStage[lead.Status] = append(byStage[lead.Status], lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns := make([]models.PipelineColumn, 0, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		leads := byStage[stage]
		if leads == nil {
			leads = []models.Lead{}
		}
		columns = append(columns, models.PipelineColumn{Stage: stage, Leads: leads})
	}
	return columns, nil
}

func (r *leadRepository) UpdateLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	const query = `
		UPDATE leads
		SET name = $2, email = $3, phone = $4, company = $5, source = $6,
			message = $7, service_type = $8, budget_label = $9,
			timeline_label = $10, updated_at = now()
		WHERE id = $1
		RETURNING ` + leadColumns

	updated, err := scanLead(r.db.QueryRowContext(ctx, query,
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Company,
		lead.Source, lead.Message, lead.ServiceType, lead.BudgetLabel, lead.TimelineLabel,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Lead{}, apperr.NotFound("lead %s not found", lead.ID)
		}
		return models.Lead{}, errors.Wrap(err, "update lead")
	}
	return updated, nil
}

func (r *leadRepository) DeleteLead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete lead")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("lead %s not found", id)
	}
	return nil
}

func (r *leadRepository) MoveStage(ctx context.Context, id string, from, to models.LeadStatus) (models.Lead, error) {
	// Single-statement CAS: the stage write and the tail-position claim in
	// the target column land together or not at all.
	const query = `
		UPDATE leads
		SET status = $2,
			position = (SELECT COALESCE(MAX(position), 0) + 1 FROM leads WHERE status = $2),
			updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + leadColumns

	var (
		moved models.Lead
		err   error
	)
	for attempt := 1; ; attempt++ {
		moved, err = scanLead(r.db.QueryRowContext(ctx, query, id, to, from))
		if err == nil {
			return moved, nil
		}
		// A lost tail-position race is retryable; a missed CAS is not.
		if isUniqueViolation(err) && attempt < claimAttempts {
			continue
		}
		break
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Lead{}, errors.Wrap(err, "move lead stage")
	}

	// The CAS missed: the lead is gone, or another actor moved it first.
	current, lookupErr := r.GetLeadByID(ctx, id)
	if lookupErr != nil {
		return models.Lead{}, lookupErr
	}
	return models.Lead{}, apperr.Conflict(
		"lead %s is in stage %s, not %s; refresh before retrying", id, current.Status, from)
}

func (r *leadRepository) CountsByStage(ctx context.Context) ([]models.PipelineStageCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count leads by stage")
	}
	defer rows.Close()

	counts := make(map[models.LeadStatus]int)
	for rows.Next() {
		var (
			stage models.LeadStatus
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[stage] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.PipelineStageCount, 0, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		out = append(out, models.PipelineStageCount{Stage: stage, Count: counts[stage]})
	}
	return out, nil
}
