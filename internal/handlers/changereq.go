package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/authz"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type ChangeRequestHandler struct {
	repo     repository.ChangeRequestRepository
	plans    repository.PlanRepository
	notifier notification.Service
	logger   zerolog.Logger
}

func NewChangeRequestHandler(db *sql.DB, notifier notification.Service, logger zerolog.Logger) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		repo:     repository.NewChangeRequestRepository(db),
		plans:    repository.NewPlanRepository(db),
		notifier: notifier,
		logger:   logger,
	}
}

type createChangeRequestBody struct {
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Priority       string  `json:"priority"`
	EstimatedHours float64 `json:"estimated_hours"`
	ProjectID      string  `json:"project_id"`
}

// Create opens a change request against a project. If the project carries a
// maintenance plan, the request is linked to it so completion can debit
// hours.
func (h *ChangeRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createChangeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.Description == "" || body.ProjectID == "" {
		writeError(w, h.logger, apperr.Validation("description and project_id are required"))
		return
	}
	if body.EstimatedHours < 0 {
		writeError(w, h.logger, apperr.Validation("estimated_hours must not be negative"))
		return
	}

	cr := models.ChangeRequest{
		Description:    body.Description,
		Category:       body.Category,
		Priority:       body.Priority,
		EstimatedHours: models.TenthsFromHours(body.EstimatedHours),
		ProjectID:      body.ProjectID,
	}
	if plan, err := h.plans.GetPlanByProject(r.Context(), body.ProjectID); err == nil {
		cr.SubscriptionID = &plan.ID
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		writeError(w, h.logger, err)
		return
	}

	created, err := h.repo.CreateChangeRequest(r.Context(), cr)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ChangeRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	cr, err := h.repo.GetChangeRequestByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (h *ChangeRequestHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	crs, err := h.repo.ListChangeRequestsByProject(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, crs)
}

type changeRequestTransitionBody struct {
	From models.ChangeRequestStatus `json:"from"`
	To   models.ChangeRequestStatus `json:"to"`
}

// Transition walks the workflow for every move except completion, which has
// its own endpoint because it also debits hours.
func (h *ChangeRequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var body changeRequestTransitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !models.CanTransitionChangeRequest(body.From, body.To) {
		writeError(w, h.logger, apperr.Validation("cannot transition change request from %s to %s", body.From, body.To))
		return
	}
	cr, err := h.repo.TransitionStatus(r.Context(), mux.Vars(r)["id"], body.From, body.To)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

type completeChangeRequestBody struct {
	ActualHours float64 `json:"actual_hours"`
}

// Complete finishes an in-progress change request and debits the actual
// hours against the linked plan. A retry of the same completion conflicts
// instead of charging twice.
func (h *ChangeRequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var body completeChangeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	result, err := h.repo.Complete(r.Context(), mux.Vars(r)["id"], models.TenthsFromHours(body.ActualHours))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if result.OverAllowance && result.Plan != nil {
		orgID, _ := authz.OrganizationIDFromRequest(r)
		if err := h.notifier.NotifyPlanOverAllowance(r.Context(), orgID, *result.Plan); err != nil {
			h.logger.Warn().Err(err).Str("plan_id", result.Plan.ID).Msg("over-allowance notification failed")
		}
	}

	resp := map[string]interface{}{
		"change_request": result.Request,
		"over_allowance": result.OverAllowance,
	}
	if result.Plan != nil {
		resp["plan"] = map[string]interface{}{
			"id":             result.Plan.ID,
			"hours_included": result.Plan.HoursIncluded.Hours(),
			"hours_used":     result.Plan.HoursUsed.Hours(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
