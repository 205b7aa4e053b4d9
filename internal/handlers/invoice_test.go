package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, notification.Event) (models.Notification, error) {
	return models.Notification{}, nil
}
func (nopNotifier) NotifyLeadConverted(context.Context, string, string) error { return nil }
func (nopNotifier) NotifyInvoiceSent(context.Context, models.Invoice) error   { return nil }
func (nopNotifier) NotifyInvoicePaid(context.Context, models.Invoice) error   { return nil }
func (nopNotifier) NotifyPlanOverAllowance(context.Context, string, models.MaintenancePlan) error {
	return nil
}
func (nopNotifier) NotifyPackExpiringSoon(context.Context, models.HourPack) error { return nil }
func (nopNotifier) ListRecent(context.Context, string, int) ([]models.Notification, error) {
	return nil, nil
}
func (nopNotifier) MarkRead(context.Context, string, string) (models.Notification, error) {
	return models.Notification{}, nil
}

type failingMailer struct{}

func (failingMailer) SendInvoiceReminder(string, models.Invoice, string) error {
	return errors.New("smtp: connection refused")
}

func (failingMailer) SendInvite(string, string, string) error {
	return errors.New("smtp: connection refused")
}

func sentInvoiceRows(id string, due time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "number", "title", "amount_cents", "tax_cents", "total_cents",
		"status", "due_date", "paid_at", "organization_id", "project_id",
		"created_at", "updated_at",
	}).AddRow(
		id, "INV-2026-AB12CD", "Retainer", int64(2000), int64(0), int64(2000),
		string(models.InvoiceStatusSent), due, nil, "org-1", nil, now, now,
	)
}

func newRemindHandler(t *testing.T, mailer notification.Mailer) (*InvoiceHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	h := &InvoiceHandler{
		repo:       repository.NewInvoiceRepository(db),
		orgs:       repository.NewOrganizationRepository(db),
		notifier:   nopNotifier{},
		mailer:     mailer,
		paymentURL: "https://pay.test/%s",
		logger:     zerolog.Nop(),
	}
	return h, mock, func() { db.Close() }
}

// A dead SMTP host must not fail the reminder: the ledger write already
// happened and the response reports delivery as best effort.
func TestRemindSurvivesMailerFailure(t *testing.T) {
	h, mock, cleanup := newRemindHandler(t, failingMailer{})
	defer cleanup()

	due := time.Now().Add(72 * time.Hour)
	mock.ExpectQuery(`FROM invoices WHERE id = \$1`).
		WithArgs("inv-1").
		WillReturnRows(sentInvoiceRows("inv-1", due))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"description", "quantity", "rate_cents"}))
	mock.ExpectExec(`UPDATE invoices`).
		WithArgs("inv-1", string(models.InvoiceStatusPaid), string(models.InvoiceStatusCancelled)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM organizations`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "billing_email", "created_at", "updated_at"}).
			AddRow("org-1", "Acme Co", "billing@acme.test", time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv-1/remind", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "inv-1"})
	rec := httptest.NewRecorder()

	h.Remind(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["delivered"])
	assert.Equal(t, "inv-1", body["invoice_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Reminders never apply to settled or voided invoices; those conflict before
// any write happens.
func TestRemindCancelledInvoiceConflicts(t *testing.T) {
	h, mock, cleanup := newRemindHandler(t, failingMailer{})
	defer cleanup()

	now := time.Now()
	cancelled := sqlmock.NewRows([]string{
		"id", "number", "title", "amount_cents", "tax_cents", "total_cents",
		"status", "due_date", "paid_at", "organization_id", "project_id",
		"created_at", "updated_at",
	}).AddRow(
		"inv-2", "INV-2026-EF34GH", "Retainer", int64(500), int64(0), int64(500),
		string(models.InvoiceStatusCancelled), nil, nil, "org-1", nil, now, now,
	)
	mock.ExpectQuery(`FROM invoices WHERE id = \$1`).
		WithArgs("inv-2").
		WillReturnRows(cancelled)
	mock.ExpectQuery(`FROM invoice_line_items`).
		WithArgs("inv-2").
		WillReturnRows(sqlmock.NewRows([]string{"description", "quantity", "rate_cents"}))

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv-2/remind", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "inv-2"})
	rec := httptest.NewRecorder()

	h.Remind(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoiceRejectsBadLineItems(t *testing.T) {
	h, _, cleanup := newRemindHandler(t, failingMailer{})
	defer cleanup()

	payload, err := json.Marshal(map[string]interface{}{
		"title":           "Retainer",
		"organization_id": "org-1",
		"line_items": []map[string]interface{}{
			{"description": "", "quantity": 1, "rate_cents": 500},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
