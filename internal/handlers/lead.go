package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type LeadHandler struct {
	repo        repository.LeadRepository
	collections repository.CollectionRepository
	notifier    notification.Service
	logger      zerolog.Logger
}

func NewLeadHandler(db *sql.DB, notifier notification.Service, logger zerolog.Logger) *LeadHandler {
	return &LeadHandler{
		repo:        repository.NewLeadRepository(db),
		collections: repository.NewCollectionRepository(db),
		notifier:    notifier,
		logger:      logger,
	}
}

type intakeRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Company       string `json:"company"`
	Source        string `json:"source"`
	Message       string `json:"message"`
	ServiceType   string `json:"service_type"`
	BudgetLabel   string `json:"budget_label"`
	TimelineLabel string `json:"timeline_label"`
}

// Intake is the public entry point for new leads. Every lead starts in NEW
// at the tail of its column.
func (h *LeadHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, h.logger, apperr.Validation("name and email are required"))
		return
	}

	lead, err := h.repo.CreateLead(r.Context(), models.Lead{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Company:       req.Company,
		Source:        req.Source,
		Message:       req.Message,
		ServiceType:   req.ServiceType,
		BudgetLabel:   req.BudgetLabel,
		TimelineLabel: req.TimelineLabel,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

// Board returns the pipeline grouped by stage. LOST leads never appear;
// empty stages come back as empty columns so the client renders a full
// board.
func (h *LeadHandler) Board(w http.ResponseWriter, r *http.Request) {
	columns, err := h.repo.ListBoard(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	lead, err := h.repo.GetLeadByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type leadUpdateRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Company       *string `json:"company"`
	Source        *string `json:"source"`
	Message       *string `json:"message"`
	ServiceType   *string `json:"service_type"`
	BudgetLabel   *string `json:"budget_label"`
	TimelineLabel *string `json:"timeline_label"`
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req leadUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.GetLeadByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&lead.Name, req.Name)
	applyString(&lead.Email, req.Email)
	applyString(&lead.Phone, req.Phone)
	applyString(&lead.Company, req.Company)
	applyString(&lead.Source, req.Source)
	applyString(&lead.Message, req.Message)
	applyString(&lead.ServiceType, req.ServiceType)
	applyString(&lead.BudgetLabel, req.BudgetLabel)
	applyString(&lead.TimelineLabel, req.TimelineLabel)

	if lead.Name == "" || lead.Email == "" {
		writeError(w, h.logger, apperr.Validation("name and email are required"))
		return
	}

	updated, err := h.repo.UpdateLead(r.Context(), lead)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a lead permanently. The confirm query flag is required so
// a stray client call cannot drop pipeline history.
func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, h.logger, apperr.Validation("deletion requires confirm=true"))
		return
	}
	if err := h.repo.DeleteLead(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveStageRequest struct {
	From models.LeadStatus `json:"from"`
	To   models.LeadStatus `json:"to"`
}

// MoveStage advances a lead through the pipeline. The caller states the
// stage it believes the lead is in; a mismatch means someone else moved it
// first and the caller gets a conflict instead of a silent overwrite.
func (h *LeadHandler) MoveStage(w http.ResponseWriter, r *http.Request) {
	var req moveStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !models.IsValidLeadStatus(req.From) || !models.IsValidLeadStatus(req.To) {
		writeError(w, h.logger, apperr.Validation("unknown pipeline stage"))
		return
	}
	if !(models.Lead{Status: req.From}).CanMoveTo(req.To) {
		writeError(w, h.logger, apperr.Validation("cannot move lead from %s to %s", req.From, req.To))
		return
	}

	lead, err := h.repo.MoveStage(r.Context(), mux.Vars(r)["id"], req.From, req.To)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if lead.Status == models.LeadStatusConverted {
		if err := h.notifier.NotifyLeadConverted(r.Context(), lead.ID, lead.Name); err != nil {
			h.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("conversion notification failed")
		}
	}
	writeJSON(w, http.StatusOK, lead)
}

type reorderRequest struct {
	Direction string `json:"direction"`
}

// Reorder nudges a lead one slot up or down within its stage column. A
// boundary move is a no-op, not an error.
func (h *LeadHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	dir, ok := repository.ParseMoveDirection(req.Direction)
	if !ok {
		writeError(w, h.logger, apperr.Validation("direction must be \"up\" or \"down\""))
		return
	}

	moved, err := h.collections.Move(r.Context(), repository.CollectionLeads, mux.Vars(r)["id"], dir)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}
