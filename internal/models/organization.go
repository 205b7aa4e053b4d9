package models

import "time"

// Organization is a client account: the owner of project requests and the
// billing party on invoices.
type Organization struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	BillingEmail string    `json:"billing_email" db:"billing_email"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Invite is a pending invitation to join an organization's client portal.
type Invite struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Email          string     `json:"email" db:"email"`
	Role           UserRole   `json:"role" db:"role"`
	TokenHash      string     `json:"-" db:"token_hash"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	CreatedBy      *string    `json:"created_by,omitempty" db:"created_by"`
}

// IsExpired determines whether the invite has expired.
func (i Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsed indicates whether the invite has already been accepted.
func (i Invite) IsUsed() bool {
	return i.AcceptedAt != nil
}
