package models

import "time"

type UserRole string

const (
	RoleClient UserRole = "client"
	RoleStaff  UserRole = "staff"
	RoleAdmin  UserRole = "admin"
)

// roleRank orders roles by authority for HasAtLeast checks.
var roleRank = map[UserRole]int{
	RoleClient: 1,
	RoleStaff:  2,
	RoleAdmin:  3,
}

type User struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Email          string     `json:"email" db:"email"`
	Name           string     `json:"name" db:"name"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           UserRole   `json:"role" db:"role"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`
}

func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// HasAtLeast reports whether role carries the authority of required.
func HasAtLeast(role, required UserRole) bool {
	return roleRank[role] >= roleRank[required]
}
