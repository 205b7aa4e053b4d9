package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type ResourceRepository interface {
	CreateResource(ctx context.Context, res models.Resource) (models.Resource, error)
	ListByCollection(ctx context.Context, collection string) ([]models.Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

type resourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

const resourceColumns = `id, collection, title, url, position, created_at, updated_at`

func scanResource(row interface{ Scan(...interface{}) error }) (models.Resource, error) {
	var res models.Resource
	err := row.Scan(
		&res.ID,
		&res.Collection,
		&res.Title,
		&res.URL,
		&res.Position,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	return res, err
}

func (r *resourceRepository) CreateResource(ctx context.Context, res models.Resource) (models.Resource, error) {
	const query = `
		INSERT INTO resources (collection, title, url, position)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM resources WHERE collection = $1))
		RETURNING ` + resourceColumns

	for attempt := 1; ; attempt++ {
		created, err := scanResource(r.db.QueryRowContext(ctx, query, res.Collection, res.Title, res.URL))
		if err == nil {
			return created, nil
		}
		if isUniqueViolation(err) && attempt < claimAttempts {
			continue
		}
		return models.Resource{}, errors.Wrap(err, "insert resource")
	}
}

func (r *resourceRepository) ListByCollection(ctx context.Context, collection string) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources
		WHERE collection = $1
		ORDER BY position ASC, created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, errors.Wrap(err, "query resources")
	}
	defer rows.Close()

	out := []models.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan resource row")
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *resourceRepository) DeleteResource(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete resource")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("resource %s not found", id)
	}
	return nil
}
