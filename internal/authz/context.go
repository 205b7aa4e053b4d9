package authz

import (
	"context"
	"net/http"

	"github.com/atelierhq/atelier-api/internal/models"
)

type contextKey string

const (
	organizationIDKey contextKey = "organization_id"
	userIDKey         contextKey = "user_id"
	userRoleKey       contextKey = "user_role"
)

// WithIdentity stores organization, user, and role information on the context.
func WithIdentity(ctx context.Context, organizationID, userID string, role models.UserRole) context.Context {
	if organizationID != "" {
		ctx = context.WithValue(ctx, organizationIDKey, organizationID)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	if models.IsValidRole(role) {
		ctx = context.WithValue(ctx, userRoleKey, role)
	}
	return ctx
}

func OrganizationIDFromRequest(r *http.Request) (string, bool) {
	oid, ok := r.Context().Value(organizationIDKey).(string)
	if !ok || oid == "" {
		return "", false
	}
	return oid, true
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RoleFromRequest(r *http.Request) (models.UserRole, bool) {
	role, ok := r.Context().Value(userRoleKey).(models.UserRole)
	if !ok || !models.IsValidRole(role) {
		return "", false
	}
	return role, true
}
