package repository

import (
	"context"
	"database/sql"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, name, billingEmail string) (models.Organization, error)
	GetOrganizationByID(ctx context.Context, id string) (models.Organization, error)
	CreateInvite(ctx context.Context, invite models.Invite) (models.Invite, error)
	GetInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invite, error)
	MarkInviteAccepted(ctx context.Context, inviteID string) (models.Invite, error)
}

type organizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) CreateOrganization(ctx context.Context, name, billingEmail string) (models.Organization, error) {
	const query = `
		INSERT INTO organizations (name, billing_email)
		VALUES ($1, $2)
		RETURNING id, name, billing_email, created_at, updated_at;
	`
	var org models.Organization
	err := r.db.QueryRowContext(ctx, query, name, billingEmail).
		Scan(&org.ID, &org.Name, &org.BillingEmail, &org.CreatedAt, &org.UpdatedAt)
	return org, err
}

func (r *organizationRepository) GetOrganizationByID(ctx context.Context, id string) (models.Organization, error) {
	const query = `
		SELECT id, name, billing_email, created_at, updated_at
		FROM organizations
		WHERE id = $1;
	`
	var org models.Organization
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&org.ID, &org.Name, &org.BillingEmail, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Organization{}, apperr.NotFound("organization not found")
	}
	return org, err
}

const inviteColumns = `id, organization_id, email, role, token_hash, created_by, created_at, expires_at, accepted_at`

func scanInvite(row interface{ Scan(...interface{}) error }) (models.Invite, error) {
	var (
		invite    models.Invite
		createdBy sql.NullString
	)
	err := row.Scan(
		&invite.ID,
		&invite.OrganizationID,
		&invite.Email,
		&invite.Role,
		&invite.TokenHash,
		&createdBy,
		&invite.CreatedAt,
		&invite.ExpiresAt,
		&invite.AcceptedAt,
	)
	if createdBy.Valid {
		invite.CreatedBy = &createdBy.String
	}
	return invite, err
}

func (r *organizationRepository) CreateInvite(ctx context.Context, invite models.Invite) (models.Invite, error) {
	const query = `
		INSERT INTO invites (organization_id, email, role, token_hash, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + inviteColumns

	var createdBy interface{}
	if invite.CreatedBy != nil && *invite.CreatedBy != "" {
		createdBy = *invite.CreatedBy
	}

	return scanInvite(r.db.QueryRowContext(ctx, query,
		invite.OrganizationID, invite.Email, invite.Role,
		invite.TokenHash, createdBy, invite.ExpiresAt,
	))
}

func (r *organizationRepository) GetInviteByTokenHash(ctx context.Context, tokenHash string) (models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE token_hash = $1`
	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, tokenHash))
	if err == sql.ErrNoRows {
		return models.Invite{}, apperr.NotFound("invite not found")
	}
	return invite, err
}

func (r *organizationRepository) MarkInviteAccepted(ctx context.Context, inviteID string) (models.Invite, error) {
	const query = `
		UPDATE invites
		SET accepted_at = now()
		WHERE id = $1 AND accepted_at IS NULL
		RETURNING ` + inviteColumns

	invite, err := scanInvite(r.db.QueryRowContext(ctx, query, inviteID))
	if err == sql.ErrNoRows {
		return models.Invite{}, apperr.Conflict("invite already accepted")
	}
	return invite, err
}
