package handlers

import (
	"database/sql"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/repository"
)

type ReportHandler struct {
	invoices repository.InvoiceRepository
	leads    repository.LeadRepository
	plans    repository.PlanRepository
	changes  repository.ChangeRequestRepository
	logger   zerolog.Logger
}

func NewReportHandler(db *sql.DB, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		invoices: repository.NewInvoiceRepository(db),
		leads:    repository.NewLeadRepository(db),
		plans:    repository.NewPlanRepository(db),
		changes:  repository.NewChangeRequestRepository(db),
		logger:   logger,
	}
}

// Stats aggregates the operational dashboard: pipeline counts, ledger
// totals, active subscriptions and open change requests.
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.invoices.InvoiceStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if stats.Pipeline, err = h.leads.CountsByStage(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if stats.ActivePlans, err = h.plans.CountActivePlans(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if stats.OpenChanges, err = h.changes.CountOpen(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
