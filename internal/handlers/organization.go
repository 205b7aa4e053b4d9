package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type OrganizationHandler struct {
	repo   repository.OrganizationRepository
	logger zerolog.Logger
}

func NewOrganizationHandler(db *sql.DB, logger zerolog.Logger) *OrganizationHandler {
	return &OrganizationHandler{repo: repository.NewOrganizationRepository(db), logger: logger}
}

type createOrganizationBody struct {
	Name         string `json:"name"`
	BillingEmail string `json:"billing_email"`
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createOrganizationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, h.logger, apperr.Validation("name is required"))
		return
	}

	org, err := h.repo.CreateOrganization(r.Context(), name, strings.TrimSpace(strings.ToLower(body.BillingEmail)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.repo.GetOrganizationByID(r.Context(), mux.Vars(r)["orgID"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}
