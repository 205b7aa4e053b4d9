package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

func invoiceRows(inv models.Invoice) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "number", "title", "amount_cents", "tax_cents", "total_cents",
		"status", "due_date", "paid_at", "organization_id", "project_id",
		"created_at", "updated_at",
	})
	var dueDate, paidAt, projectID interface{}
	if inv.DueDate != nil {
		dueDate = *inv.DueDate
	}
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	if inv.ProjectID != nil {
		projectID = *inv.ProjectID
	}
	rows.AddRow(inv.ID, inv.Number, inv.Title, inv.AmountCents, inv.TaxCents,
		inv.TotalCents, string(inv.Status), dueDate, paidAt, inv.OrganizationID,
		projectID, inv.CreatedAt, inv.UpdatedAt)
	return rows
}

func TestMarkPaidCancelledInvoiceConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE invoices`).
		WithArgs("inv-1", string(models.InvoiceStatusPaid),
			string(models.InvoiceStatusDraft), string(models.InvoiceStatusSent)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.InvoiceStatusCancelled)))

	repo := NewInvoiceRepository(db)
	_, err = repo.MarkPaid(context.Background(), "inv-1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaidSetsPaidAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	paid := models.Invoice{
		ID:     "inv-1",
		Number: "INV-2025-0001AB",
		Status: models.InvoiceStatusPaid,
		PaidAt: &now,
	}
	mock.ExpectQuery(`UPDATE invoices`).
		WithArgs("inv-1", string(models.InvoiceStatusPaid),
			string(models.InvoiceStatusDraft), string(models.InvoiceStatusSent)).
		WillReturnRows(invoiceRows(paid))

	repo := NewInvoiceRepository(db)
	got, err := repo.MarkPaid(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
}

// A payment or cancellation landing after the caller's read must stop the
// reminder at the UPDATE itself, not rely on the earlier status check.
func TestRecordReminderBlockedOnceSettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE invoices`).
		WithArgs("inv-1", string(models.InvoiceStatusPaid), string(models.InvoiceStatusCancelled)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.InvoiceStatusCancelled)))

	repo := NewInvoiceRepository(db)
	err = repo.RecordReminder(context.Background(), "inv-1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReminderIncrementsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE invoices`).
		WithArgs("inv-1", string(models.InvoiceStatusPaid), string(models.InvoiceStatusCancelled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInvoiceRepository(db)
	require.NoError(t, repo.RecordReminder(context.Background(), "inv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLineItemsRunsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	items := []models.LineItem{
		{Description: "Design sprint", Quantity: 2, RateCents: 500},
		{Description: "Copywriting", Quantity: 1, RateCents: 1000},
	}
	totals, err := models.ComputeTotals(items, 0)
	require.NoError(t, err)

	draft := models.Invoice{ID: "inv-1", Status: models.InvoiceStatusDraft,
		AmountCents: totals.AmountCents, TotalCents: totals.TotalCents}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices`).
		WithArgs("inv-1", totals.AmountCents, totals.TaxCents, totals.TotalCents,
			string(models.InvoiceStatusDraft)).
		WillReturnRows(invoiceRows(draft))
	mock.ExpectExec(`DELETE FROM invoice_line_items`).
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO invoice_line_items`).
		WithArgs("inv-1", 1, "Design sprint", int64(2), int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO invoice_line_items`).
		WithArgs("inv-1", 2, "Copywriting", int64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewInvoiceRepository(db)
	updated, err := repo.ReplaceLineItems(context.Background(), "inv-1", items, totals)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.AmountCents)
	assert.Equal(t, updated.AmountCents+updated.TaxCents, updated.TotalCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLineItemsOnSentInvoiceConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	items := []models.LineItem{{Description: "x", Quantity: 1, RateCents: 100}}
	totals, err := models.ComputeTotals(items, 0)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices`).
		WithArgs("inv-1", totals.AmountCents, totals.TaxCents, totals.TotalCents,
			string(models.InvoiceStatusDraft)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM invoices WHERE id = \$1`).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(models.InvoiceStatusSent)))
	mock.ExpectRollback()

	repo := NewInvoiceRepository(db)
	_, err = repo.ReplaceLineItems(context.Background(), "inv-1", items, totals)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
