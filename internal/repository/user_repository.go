package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/atelierhq/atelier-api/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, organizationID, email, name, password string, role models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, organization_id, email, name, password_hash, role, is_active, created_at, deleted_at`

func scanUser(row interface{ Scan(...interface{}) error }) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.OrganizationID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.DeletedAt,
	)
	return u, err
}

func (u *userRepository) CreateUser(ctx context.Context, organizationID, email, name, password string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, errors.New("email is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	const query = `
		INSERT INTO users (organization_id, email, name, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING ` + userColumns

	return scanUser(u.db.QueryRowContext(ctx, query,
		organizationID, email, strings.TrimSpace(name), string(hash), role))
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := u.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}
	return user, nil
}

func (u *userRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE email = $1 AND deleted_at IS NULL`
	return scanUser(u.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(u.db.QueryRowContext(ctx, query, userID))
}
