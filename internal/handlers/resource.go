package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/repository"
)

// ResourceHandler manages the ordered link collections shown on the client
// portal (onboarding checklists, deliverable links and the like).
type ResourceHandler struct {
	repo        repository.ResourceRepository
	collections repository.CollectionRepository
	logger      zerolog.Logger
}

func NewResourceHandler(db *sql.DB, logger zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{
		repo:        repository.NewResourceRepository(db),
		collections: repository.NewCollectionRepository(db),
		logger:      logger,
	}
}

type createResourceBody struct {
	Collection string `json:"collection"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createResourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.Collection == "" || body.Title == "" {
		writeError(w, h.logger, apperr.Validation("collection and title are required"))
		return
	}

	res, err := h.repo.CreateResource(r.Context(), models.Resource{
		Collection: body.Collection,
		Title:      body.Title,
		URL:        body.URL,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ResourceHandler) ListByCollection(w http.ResponseWriter, r *http.Request) {
	resources, err := h.repo.ListByCollection(r.Context(), mux.Vars(r)["collection"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (h *ResourceHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	dir, ok := repository.ParseMoveDirection(body.Direction)
	if !ok {
		writeError(w, h.logger, apperr.Validation("direction must be \"up\" or \"down\""))
		return
	}

	moved, err := h.collections.Move(r.Context(), repository.CollectionResources, mux.Vars(r)["id"], dir)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteResource(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
