package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/authz"
	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type InvoiceHandler struct {
	repo       repository.InvoiceRepository
	orgs       repository.OrganizationRepository
	notifier   notification.Service
	mailer     notification.Mailer
	paymentURL string
	logger     zerolog.Logger
}

func NewInvoiceHandler(db *sql.DB, notifier notification.Service, mailer notification.Mailer, paymentURL string, logger zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		repo:       repository.NewInvoiceRepository(db),
		orgs:       repository.NewOrganizationRepository(db),
		notifier:   notifier,
		mailer:     mailer,
		paymentURL: paymentURL,
		logger:     logger,
	}
}

// newInvoiceNumber mints a display number like INV-2026-1A2B3C. Uniqueness
// is enforced by the database; the random tail just makes collisions
// vanishingly rare.
func newInvoiceNumber(now time.Time) string {
	tail := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("INV-%d-%s", now.Year(), tail)
}

type createInvoiceBody struct {
	Title     string            `json:"title"`
	Items     []models.LineItem `json:"line_items"`
	TaxCents  int64             `json:"tax_cents"`
	ProjectID *string           `json:"project_id"`
	OrgID     string            `json:"organization_id"`
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createInvoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.Title == "" || body.OrgID == "" {
		writeError(w, h.logger, apperr.Validation("title and organization_id are required"))
		return
	}

	totals, err := models.ComputeTotals(body.Items, body.TaxCents)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	inv := models.Invoice{
		Number:         newInvoiceNumber(time.Now().UTC()),
		Title:          body.Title,
		LineItems:      body.Items,
		AmountCents:    totals.AmountCents,
		TaxCents:       totals.TaxCents,
		TotalCents:     totals.TotalCents,
		OrganizationID: body.OrgID,
		ProjectID:      body.ProjectID,
	}
	created, err := h.repo.CreateInvoice(r.Context(), inv)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.withDisplayStatus(created))
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	role, _ := authz.RoleFromRequest(r)
	var (
		invoices []models.Invoice
		err      error
	)
	if models.HasAtLeast(role, models.RoleStaff) {
		invoices, err = h.repo.ListInvoices(r.Context())
	} else {
		orgID, ok := authz.OrganizationIDFromRequest(r)
		if !ok {
			http.Error(w, "Missing organization context", http.StatusUnauthorized)
			return
		}
		invoices, err = h.repo.ListInvoicesByOrganization(r.Context(), orgID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, h.withDisplayStatus(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.getVisible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withDisplayStatus(inv))
}

type replaceItemsBody struct {
	Items    []models.LineItem `json:"line_items"`
	TaxCents int64             `json:"tax_cents"`
}

// ReplaceItems swaps the draft's line items and rewrites the totals from
// them in the same transaction, so stored totals always match stored items.
func (h *InvoiceHandler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	var body replaceItemsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	totals, err := models.ComputeTotals(body.Items, body.TaxCents)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	inv, err := h.repo.ReplaceLineItems(r.Context(), mux.Vars(r)["id"], body.Items, totals)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withDisplayStatus(inv))
}

type sendInvoiceBody struct {
	DueDate time.Time `json:"due_date"`
}

func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	var body sendInvoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if body.DueDate.IsZero() {
		writeError(w, h.logger, apperr.Validation("due_date is required"))
		return
	}

	inv, err := h.repo.MarkSent(r.Context(), mux.Vars(r)["id"], body.DueDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.notifier.NotifyInvoiceSent(r.Context(), inv); err != nil {
		h.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("sent notification failed")
	}
	writeJSON(w, http.StatusOK, h.withDisplayStatus(inv))
}

func (h *InvoiceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	inv, err := h.repo.MarkPaid(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.notifier.NotifyInvoicePaid(r.Context(), inv); err != nil {
		h.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("paid notification failed")
	}
	writeJSON(w, http.StatusOK, h.withDisplayStatus(inv))
}

func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	inv, err := h.repo.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withDisplayStatus(inv))
}

// Remind records a reminder and emails the billing contact. The reminder
// itself is the ledger operation; the email is best effort, so a down SMTP
// host cannot fail the request.
func (h *InvoiceHandler) Remind(w http.ResponseWriter, r *http.Request) {
	inv, err := h.repo.GetInvoiceByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !inv.CanRemind() {
		writeError(w, h.logger, apperr.Conflict("reminders do not apply to %s invoices", inv.Status))
		return
	}

	if err := h.repo.RecordReminder(r.Context(), inv.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.notifier.Publish(r.Context(), notification.Event{
		OrganizationID: inv.OrganizationID,
		Event:          models.NotificationEventInvoiceReminder,
		Title:          "Payment reminder sent: " + inv.Number,
		Metadata:       map[string]interface{}{"invoice_id": inv.ID},
	}); err != nil {
		h.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("reminder feed entry failed")
	}

	delivered := false
	org, err := h.orgs.GetOrganizationByID(r.Context(), inv.OrganizationID)
	switch {
	case err != nil:
		h.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("reminder recipient lookup failed")
	case org.BillingEmail == "":
		h.logger.Warn().Str("organization_id", org.ID).Msg("organization has no billing email, reminder not sent")
	default:
		paymentURL := fmt.Sprintf(h.paymentURL, inv.ID)
		if err := h.mailer.SendInvoiceReminder(org.BillingEmail, inv, paymentURL); err != nil {
			h.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("reminder email failed")
		} else {
			delivered = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id": inv.ID,
		"delivered":  delivered,
	})
}

// invoiceView decorates the stored invoice with the derived display status.
// OVERDUE exists only here; the stored status stays SENT.
type invoiceView struct {
	models.Invoice
	DisplayStatus models.InvoiceStatus `json:"display_status"`
	IsOverdue     bool                 `json:"is_overdue"`
}

func (h *InvoiceHandler) withDisplayStatus(inv models.Invoice) invoiceView {
	now := time.Now().UTC()
	return invoiceView{
		Invoice:       inv,
		DisplayStatus: inv.DisplayStatus(now),
		IsOverdue:     inv.IsOverdue(now),
	}
}

func (h *InvoiceHandler) getVisible(r *http.Request) (models.Invoice, error) {
	inv, err := h.repo.GetInvoiceByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return models.Invoice{}, err
	}
	role, _ := authz.RoleFromRequest(r)
	if models.HasAtLeast(role, models.RoleStaff) {
		return inv, nil
	}
	orgID, _ := authz.OrganizationIDFromRequest(r)
	if inv.OrganizationID != orgID {
		return models.Invoice{}, apperr.NotFound("invoice not found")
	}
	return inv, nil
}
