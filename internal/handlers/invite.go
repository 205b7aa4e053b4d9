package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/authz"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

const defaultInviteTTL = 7 * 24 * time.Hour

type InviteHandler struct {
	orgRepo  repository.OrganizationRepository
	userRepo repository.UserRepository
	tokenTTL time.Duration
	mailer   notification.Mailer
	urlTpl   string
	logger   zerolog.Logger
}

func NewInviteHandler(db *sql.DB, mailer notification.Mailer, inviteURLTemplate string, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{
		orgRepo:  repository.NewOrganizationRepository(db),
		userRepo: repository.NewUserRepository(db),
		tokenTTL: defaultInviteTTL,
		mailer:   mailer,
		urlTpl:   inviteURLTemplate,
		logger:   logger,
	}
}

type inviteRequest struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	ExpiresInHours *int   `json:"expires_in_hours"`
}

// CreateInvite issues a portal invitation for the given organization. Only
// the raw token leaves the server; the store keeps its hash.
func (h *InviteHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]
	org, err := h.orgRepo.GetOrganizationByID(r.Context(), orgID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var payload inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(strings.ToLower(payload.Email))
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	role := models.RoleClient
	if payload.Role != "" {
		role = models.UserRole(strings.ToLower(strings.TrimSpace(payload.Role)))
		if !models.IsValidRole(role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}
	}

	ttl := h.tokenTTL
	if payload.ExpiresInHours != nil {
		dur := *payload.ExpiresInHours
		if dur <= 0 || dur > 24*30 {
			http.Error(w, "expires_in_hours must be between 1 and 720", http.StatusBadRequest)
			return
		}
		ttl = time.Duration(dur) * time.Hour
	}

	token, err := generateInviteToken()
	if err != nil {
		http.Error(w, "failed to generate invite token", http.StatusInternalServerError)
		return
	}

	var createdBy *string
	if uid, ok := authz.UserIDFromRequest(r); ok {
		createdBy = &uid
	}

	invite, err := h.orgRepo.CreateInvite(r.Context(), models.Invite{
		OrganizationID: org.ID,
		Email:          email,
		Role:           role,
		TokenHash:      hashInviteToken(token),
		ExpiresAt:      time.Now().Add(ttl),
		CreatedBy:      createdBy,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	inviteURL := fmt.Sprintf(h.urlTpl, token)
	if err := h.mailer.SendInvite(invite.Email, org.Name, inviteURL); err != nil {
		http.Error(w, "failed to send invite email: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		ID             string          `json:"id"`
		OrganizationID string          `json:"organization_id"`
		Email          string          `json:"email"`
		Role           models.UserRole `json:"role"`
		Token          string          `json:"token"`
		ExpiresAt      time.Time       `json:"expires_at"`
	}{
		ID:             invite.ID,
		OrganizationID: invite.OrganizationID,
		Email:          invite.Email,
		Role:           invite.Role,
		Token:          token,
		ExpiresAt:      invite.ExpiresAt,
	})
}

func (h *InviteHandler) PreviewInvite(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	invite, err := h.orgRepo.GetInviteByTokenHash(r.Context(), hashInviteToken(token))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if invite.IsUsed() {
		http.Error(w, "invite already accepted", http.StatusConflict)
		return
	}
	if invite.IsExpired(time.Now()) {
		http.Error(w, "invite expired", http.StatusGone)
		return
	}

	org, err := h.orgRepo.GetOrganizationByID(r.Context(), invite.OrganizationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Email            string          `json:"email"`
		OrganizationID   string          `json:"organization_id"`
		OrganizationName string          `json:"organization_name"`
		Role             models.UserRole `json:"role"`
		ExpiresAt        time.Time       `json:"expires_at"`
	}{
		Email:            invite.Email,
		OrganizationID:   invite.OrganizationID,
		OrganizationName: org.Name,
		Role:             invite.Role,
		ExpiresAt:        invite.ExpiresAt,
	})
}

func (h *InviteHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	var payload struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	invite, err := h.orgRepo.GetInviteByTokenHash(r.Context(), hashInviteToken(token))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if invite.IsUsed() {
		http.Error(w, "invite already accepted", http.StatusConflict)
		return
	}
	if invite.IsExpired(time.Now()) {
		http.Error(w, "invite expired", http.StatusGone)
		return
	}

	existing, err := h.userRepo.GetUserByEmail(r.Context(), invite.Email)
	switch {
	case err == nil:
		if existing.OrganizationID != invite.OrganizationID {
			http.Error(w, "user already belongs to a different organization", http.StatusConflict)
			return
		}
		if !existing.IsActive {
			http.Error(w, "user is inactive", http.StatusConflict)
			return
		}
	case errors.Is(err, sql.ErrNoRows) || apperr.IsKind(err, apperr.KindNotFound):
		password := strings.TrimSpace(payload.Password)
		if password == "" {
			http.Error(w, "password is required", http.StatusBadRequest)
			return
		}
		if _, err := h.userRepo.CreateUser(r.Context(),
			invite.OrganizationID, invite.Email, payload.Name, password, invite.Role); err != nil {
			http.Error(w, "failed to create user: "+err.Error(), http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "failed to load user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := h.orgRepo.MarkInviteAccepted(r.Context(), invite.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
