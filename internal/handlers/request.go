package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/authz"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type RequestHandler struct {
	repo   repository.RequestRepository
	logger zerolog.Logger
}

func NewRequestHandler(db *sql.DB, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{repo: repository.NewRequestRepository(db), logger: logger}
}

type createRequestBody struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ContactEmail string   `json:"contact_email"`
	Company      string   `json:"company"`
	Budget       string   `json:"budget"`
	Timeline     string   `json:"timeline"`
	Services     []string `json:"services"`
	Notes        string   `json:"notes"`
}

func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.Title == "" || body.ContactEmail == "" {
		writeError(w, h.logger, apperr.Validation("title and contact_email are required"))
		return
	}

	created, err := h.repo.CreateRequest(r.Context(), models.ProjectRequest{
		Title:        body.Title,
		Description:  body.Description,
		ContactEmail: body.ContactEmail,
		Company:      body.Company,
		Budget:       body.Budget,
		Timeline:     body.Timeline,
		Services:     body.Services,
		Notes:        body.Notes,
		OwnerID:      userID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns the caller's own requests for clients and every request for
// staff.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	role, _ := authz.RoleFromRequest(r)
	if models.HasAtLeast(role, models.RoleStaff) {
		requests, err := h.repo.ListRequests(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
		return
	}

	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	requests, err := h.repo.ListRequestsByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.getVisible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type editRequestBody struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Company     *string   `json:"company"`
	Budget      *string   `json:"budget"`
	Timeline    *string   `json:"timeline"`
	Services    *[]string `json:"services"`
	Notes       *string   `json:"notes"`
}

// Edit mutates a request while it is still the client's to change. The
// repository enforces the same guard the handler pre-checks, so a race with
// a reviewer still fails closed.
func (h *RequestHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var body editRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	req, err := h.getVisible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !req.CanEditOrDelete() {
		writeError(w, h.logger, apperr.Forbidden("request can no longer be edited"))
		return
	}

	if body.Title != nil {
		req.Title = *body.Title
	}
	if body.Description != nil {
		req.Description = *body.Description
	}
	if body.Company != nil {
		req.Company = *body.Company
	}
	if body.Budget != nil {
		req.Budget = *body.Budget
	}
	if body.Timeline != nil {
		req.Timeline = *body.Timeline
	}
	if body.Services != nil {
		req.Services = *body.Services
	}
	if body.Notes != nil {
		req.Notes = *body.Notes
	}
	if req.Title == "" {
		writeError(w, h.logger, apperr.Validation("title is required"))
		return
	}

	updated, err := h.repo.UpdateRequest(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	if err := h.repo.DeleteRequest(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit moves the caller's DRAFT request into SUBMITTED.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	req, err := h.repo.Submit(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type transitionRequestBody struct {
	From models.RequestStatus `json:"from"`
	To   models.RequestStatus `json:"to"`
}

// Transition is the staff-side review move. The from status is the
// caller's view; a stale view conflicts rather than overwrites.
func (h *RequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var body transitionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !models.CanTransitionRequest(body.From, body.To) {
		writeError(w, h.logger, apperr.Validation("cannot transition request from %s to %s", body.From, body.To))
		return
	}
	req, err := h.repo.TransitionStatus(r.Context(), mux.Vars(r)["id"], body.From, body.To)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type attachProjectBody struct {
	ProjectID        string     `json:"project_id"`
	ProjectCreatedAt *time.Time `json:"project_created_at"`
}

// AttachProject links an approved request to the project built from it.
// Attachment is one-shot; a second attach conflicts.
func (h *RequestHandler) AttachProject(w http.ResponseWriter, r *http.Request) {
	var body attachProjectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.ProjectID == "" {
		writeError(w, h.logger, apperr.Validation("project_id is required"))
		return
	}
	createdAt := time.Now().UTC()
	if body.ProjectCreatedAt != nil {
		createdAt = *body.ProjectCreatedAt
	}

	req, err := h.repo.AttachProject(r.Context(), mux.Vars(r)["id"], body.ProjectID, createdAt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Timeline derives the milestone view from the request's current state.
// Nothing here is stored; two reads of the same request agree by
// construction.
func (h *RequestHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	req, err := h.getVisible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Milestones())
}

// getVisible loads the request and hides other clients' requests behind
// NotFound rather than Forbidden, so their existence does not leak.
func (h *RequestHandler) getVisible(r *http.Request) (models.ProjectRequest, error) {
	req, err := h.repo.GetRequestByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return models.ProjectRequest{}, err
	}
	role, _ := authz.RoleFromRequest(r)
	if models.HasAtLeast(role, models.RoleStaff) {
		return req, nil
	}
	userID, _ := authz.UserIDFromRequest(r)
	if req.OwnerID != userID {
		return models.ProjectRequest{}, apperr.NotFound("request not found")
	}
	return req, nil
}
