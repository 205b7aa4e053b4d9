package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type RequestRepository interface {
	CreateRequest(ctx context.Context, req models.ProjectRequest) (models.ProjectRequest, error)
	GetRequestByID(ctx context.Context, id string) (models.ProjectRequest, error)
	ListRequestsByOwner(ctx context.Context, ownerID string) ([]models.ProjectRequest, error)
	ListRequests(ctx context.Context) ([]models.ProjectRequest, error)
	// UpdateRequest applies client edits. The editable-status guard is part
	// of the statement; the server, not the UI, is the authority.
	UpdateRequest(ctx context.Context, req models.ProjectRequest) (models.ProjectRequest, error)
	DeleteRequest(ctx context.Context, id, ownerID string) error
	Submit(ctx context.Context, id, ownerID string) (models.ProjectRequest, error)
	TransitionStatus(ctx context.Context, id string, from, to models.RequestStatus) (models.ProjectRequest, error)
	AttachProject(ctx context.Context, id, projectID string, projectCreatedAt time.Time) (models.ProjectRequest, error)
}

type requestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, title, description, status, contact_email, company,
	budget, timeline, services, notes, owner_id, project_id, project_created_at,
	created_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (models.ProjectRequest, error) {
	var (
		req      models.ProjectRequest
		services pq.StringArray
	)
	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Status,
		&req.ContactEmail,
		&req.Company,
		&req.Budget,
		&req.Timeline,
		&services,
		&req.Notes,
		&req.OwnerID,
		&req.ProjectID,
		&req.ProjectAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	req.Services = []string(services)
	return req, err
}

func (r *requestRepository) CreateRequest(ctx context.Context, req models.ProjectRequest) (models.ProjectRequest, error) {
	const query = `
		INSERT INTO project_requests (title, description, status, contact_email,
			company, budget, timeline, services, notes, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + requestColumns

	created, err := scanRequest(r.db.QueryRowContext(ctx, query,
		req.Title, req.Description, models.RequestStatusDraft, req.ContactEmail,
		req.Company, req.Budget, req.Timeline, pq.Array(req.Services), req.Notes, req.OwnerID,
	))
	if err != nil {
		return models.ProjectRequest{}, errors.Wrap(err, "insert project request")
	}
	return created, nil
}

func (r *requestRepository) GetRequestByID(ctx context.Context, id string) (models.ProjectRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM project_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProjectRequest{}, apperr.NotFound("project request %s not found", id)
		}
		return models.ProjectRequest{}, errors.Wrap(err, "load project request")
	}
	return req, nil
}

func (r *requestRepository) ListRequestsByOwner(ctx context.Context, ownerID string) ([]models.ProjectRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM project_requests
		WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.queryRequests(ctx, query, ownerID)
}

func (r *requestRepository) ListRequests(ctx context.Context) ([]models.ProjectRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM project_requests ORDER BY created_at DESC`
	return r.queryRequests(ctx, query)
}

func (r *requestRepository) queryRequests(ctx context.Context, query string, args ...interface{}) ([]models.ProjectRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query project requests")
	}
	defer rows.Close()

	var out []models.ProjectRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan project request row")
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *requestRepository) UpdateRequest(ctx context.Context, req models.ProjectRequest) (models.ProjectRequest, error) {
	const query = `
		UPDATE project_requests
		SET title = $3, description = $4, company = $5, budget = $6,
			timeline = $7, services = $8, notes = $9, updated_at = now()
		WHERE id = $1 AND owner_id = $2
			AND status IN ($10, $11) AND project_id IS NULL
		RETURNING ` + requestColumns

	updated, err := scanRequest(r.db.QueryRowContext(ctx, query,
		req.ID, req.OwnerID, req.Title, req.Description, req.Company,
		req.Budget, req.Timeline, pq.Array(req.Services), req.Notes,
		models.RequestStatusDraft, models.RequestStatusSubmitted,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ProjectRequest{}, errors.Wrap(err, "update project request")
	}
	return models.ProjectRequest{}, r.explainGuardMiss(ctx, req.ID, req.OwnerID)
}

func (r *requestRepository) DeleteRequest(ctx context.Context, id, ownerID string) error {
	const query = `
		DELETE FROM project_requests
		WHERE id = $1 AND owner_id = $2
			AND status IN ($3, $4) AND project_id IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, ownerID,
		models.RequestStatusDraft, models.RequestStatusSubmitted)
	if err != nil {
		return errors.Wrap(err, "delete project request")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.explainGuardMiss(ctx, id, ownerID)
	}
	return nil
}

// explainGuardMiss turns a zero-row guarded write into the precise failure:
// gone, someone else's, or no longer editable.
func (r *requestRepository) explainGuardMiss(ctx context.Context, id, ownerID string) error {
	current, err := r.GetRequestByID(ctx, id)
	if err != nil {
		return err
	}
	if current.OwnerID != ownerID {
		return apperr.Forbidden("project request %s does not belong to you", id)
	}
	return apperr.Forbidden("project request %s can no longer be edited or deleted", id)
}

func (r *requestRepository) Submit(ctx context.Context, id, ownerID string) (models.ProjectRequest, error) {
	const query = `
		UPDATE project_requests
		SET status = $3, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND status = $4
		RETURNING ` + requestColumns

	submitted, err := scanRequest(r.db.QueryRowContext(ctx, query,
		id, ownerID, models.RequestStatusSubmitted, models.RequestStatusDraft))
	if err == nil {
		return submitted, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ProjectRequest{}, errors.Wrap(err, "submit project request")
	}

	current, lookupErr := r.GetRequestByID(ctx, id)
	if lookupErr != nil {
		return models.ProjectRequest{}, lookupErr
	}
	if current.OwnerID != ownerID {
		return models.ProjectRequest{}, apperr.Forbidden("project request %s does not belong to you", id)
	}
	return models.ProjectRequest{}, apperr.Validation(
		"project request %s is %s; only drafts can be submitted", id, current.Status)
}

func (r *requestRepository) TransitionStatus(ctx context.Context, id string, from, to models.RequestStatus) (models.ProjectRequest, error) {
	const query = `
		UPDATE project_requests
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + requestColumns

	updated, err := scanRequest(r.db.QueryRowContext(ctx, query, id, to, from))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ProjectRequest{}, errors.Wrap(err, "transition project request")
	}

	current, lookupErr := r.GetRequestByID(ctx, id)
	if lookupErr != nil {
		return models.ProjectRequest{}, lookupErr
	}
	return models.ProjectRequest{}, apperr.Conflict(
		"project request %s is %s, not %s; refresh before retrying", id, current.Status, from)
}

func (r *requestRepository) AttachProject(ctx context.Context, id, projectID string, projectCreatedAt time.Time) (models.ProjectRequest, error) {
	const query = `
		UPDATE project_requests
		SET project_id = $2, project_created_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4 AND project_id IS NULL
		RETURNING ` + requestColumns

	updated, err := scanRequest(r.db.QueryRowContext(ctx, query,
		id, projectID, projectCreatedAt, models.RequestStatusApproved))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ProjectRequest{}, errors.Wrap(err, "attach project to request")
	}

	current, lookupErr := r.GetRequestByID(ctx, id)
	if lookupErr != nil {
		return models.ProjectRequest{}, lookupErr
	}
	if current.ProjectID != nil {
		return models.ProjectRequest{}, apperr.Conflict("project request %s already has a project attached", id)
	}
	return models.ProjectRequest{}, apperr.Conflict(
		"project request %s is %s; only approved requests can receive a project", id, current.Status)
}
