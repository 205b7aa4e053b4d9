package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/atelierhq/atelier-api/internal/models"
)

type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (models.Invoice, error)
	ListInvoicesByOrganization(ctx context.Context, orgID string) ([]models.Invoice, error)
	ListInvoices(ctx context.Context) ([]models.Invoice, error)
	// ReplaceLineItems swaps the item set and the recomputed totals in one
	// transaction. Totals are never written without their inputs.
	ReplaceLineItems(ctx context.Context, id string, items []models.LineItem, totals models.InvoiceTotals) (models.Invoice, error)
	MarkSent(ctx context.Context, id string, dueDate time.Time) (models.Invoice, error)
	MarkPaid(ctx context.Context, id string) (models.Invoice, error)
	Cancel(ctx context.Context, id string) (models.Invoice, error)
	RecordReminder(ctx context.Context, id string) error
	// RefreshOverdueFlags persists the derived overdue classification for
	// reporting indexes. Read paths ignore the flag and derive instead.
	RefreshOverdueFlags(ctx context.Context, now time.Time) (int64, error)
	InvoiceStats(ctx context.Context) (models.LedgerStats, error)
}

type invoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `id, number, title, amount_cents, tax_cents, total_cents,
	status, due_date, paid_at, organization_id, project_id, created_at, updated_at`

func scanInvoice(row interface{ Scan(...interface{}) error }) (models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.Title,
		&inv.AmountCents,
		&inv.TaxCents,
		&inv.TotalCents,
		&inv.Status,
		&inv.DueDate,
		&inv.PaidAt,
		&inv.OrganizationID,
		&inv.ProjectID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, err
}

func (r *invoiceRepository) CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Invoice{}, errors.Wrap(err, "begin invoice insert")
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO invoices (number, title, amount_cents, tax_cents, total_cents,
			status, due_date, organization_id, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + invoiceColumns

	created, err := scanInvoice(tx.QueryRowContext(ctx, query,
		inv.Number, inv.Title, inv.AmountCents, inv.TaxCents, inv.TotalCents,
		models.InvoiceStatusDraft, inv.DueDate, inv.OrganizationID, inv.ProjectID,
	))
	if err != nil {
		return models.Invoice{}, errors.Wrap(err, "insert invoice")
	}

	if err := insertLineItems(ctx, tx, created.ID, inv.LineItems); err != nil {
		return models.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Invoice{}, errors.Wrap(err, "commit invoice insert")
	}

	created.LineItems = inv.LineItems
	return created, nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, invoiceID string, items []models.LineItem) error {
	const query = `
		INSERT INTO invoice_line_items (invoice_id, line_no, description, quantity, rate_cents)
		VALUES ($1, $2, $3, $4, $5)`

	for i, item := range items {
		if _, err := tx.ExecContext(ctx, query, invoiceID, i+1, item.Description, item.Quantity, item.RateCents); err != nil {
			return errors.Wrap(err, "insert invoice line item")
		}
	}
	return nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, invoiceID string) ([]models.LineItem, error) {
	const query = `
		SELECT description, quantity, rate_cents
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY line_no ASC`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, "query invoice line items")
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.Description, &item.Quantity, &item.RateCents); err != nil {
			return nil, errors.Wrap(err, "scan invoice line item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *invoiceRepository) GetInvoiceByID(ctx context.Context, id string) (models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invoice{}, apperr.NotFound("invoice %s not found", id)
		}
		return models.Invoice{}, errors.Wrap(err, "load invoice")
	}

	inv.LineItems, err = r.loadLineItems(ctx, id)
	if err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (r *invoiceRepository) ListInvoicesByOrganization(ctx context.Context, orgID string) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE organization_id = $1 ORDER BY created_at DESC`
	return r.queryInvoices(ctx, query, orgID)
}

func (r *invoiceRepository) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at DESC`
	return r.queryInvoices(ctx, query)
}

func (r *invoiceRepository) queryInvoices(ctx context.Context, query string, args ...interface{}) ([]models.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query invoices")
	}
	defer rows.Close()

	var out []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan invoice row")
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepository) ReplaceLineItems(ctx context.Context, id string, items []models.LineItem, totals models.InvoiceTotals) (models.Invoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Invoice{}, errors.Wrap(err, "begin line item replace")
	}
	defer tx.Rollback()

	// Item edits are confined to drafts; the guard doubles as the CAS.
	const query = `
		UPDATE invoices
		SET amount_cents = $2, tax_cents = $3, total_cents = $4, updated_at = now()
		WHERE id = $1 AND status = $5
		RETURNING ` + invoiceColumns

	updated, err := scanInvoice(tx.QueryRowContext(ctx, query,
		id, totals.AmountCents, totals.TaxCents, totals.TotalCents, models.InvoiceStatusDraft))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invoice{}, r.explainStatusMiss(ctx, id, "line items can only be edited on drafts")
		}
		return models.Invoice{}, errors.Wrap(err, "update invoice totals")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = $1`, id); err != nil {
		return models.Invoice{}, errors.Wrap(err, "clear invoice line items")
	}
	if err := insertLineItems(ctx, tx, id, items); err != nil {
		return models.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Invoice{}, errors.Wrap(err, "commit line item replace")
	}

	updated.LineItems = items
	return updated, nil
}

func (r *invoiceRepository) MarkSent(ctx context.Context, id string, dueDate time.Time) (models.Invoice, error) {
	const query = `
		UPDATE invoices
		SET status = $2, due_date = $3, updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING ` + invoiceColumns

	sent, err := scanInvoice(r.db.QueryRowContext(ctx, query,
		id, models.InvoiceStatusSent, dueDate, models.InvoiceStatusDraft))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invoice{}, r.explainStatusMiss(ctx, id, "only drafts can be sent")
		}
		return models.Invoice{}, errors.Wrap(err, "mark invoice sent")
	}
	return sent, nil
}

func (r *invoiceRepository) MarkPaid(ctx context.Context, id string) (models.Invoice, error) {
	const query = `
		UPDATE invoices
		SET status = $2, paid_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING ` + invoiceColumns

	paid, err := scanInvoice(r.db.QueryRowContext(ctx, query,
		id, models.InvoiceStatusPaid, models.InvoiceStatusDraft, models.InvoiceStatusSent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invoice{}, r.explainStatusMiss(ctx, id, "invoice cannot be marked paid")
		}
		return models.Invoice{}, errors.Wrap(err, "mark invoice paid")
	}
	return paid, nil
}

func (r *invoiceRepository) Cancel(ctx context.Context, id string) (models.Invoice, error) {
	const query = `
		UPDATE invoices
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING ` + invoiceColumns

	cancelled, err := scanInvoice(r.db.QueryRowContext(ctx, query,
		id, models.InvoiceStatusCancelled, models.InvoiceStatusDraft, models.InvoiceStatusSent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invoice{}, r.explainStatusMiss(ctx, id, "invoice cannot be cancelled")
		}
		return models.Invoice{}, errors.Wrap(err, "cancel invoice")
	}
	return cancelled, nil
}

// explainStatusMiss distinguishes a deleted invoice from a terminal-status
// conflict after a guarded write matched no rows.
func (r *invoiceRepository) explainStatusMiss(ctx context.Context, id, reason string) error {
	var status models.InvoiceStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM invoices WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("invoice %s not found", id)
	}
	if err != nil {
		return errors.Wrap(err, "load invoice status")
	}
	return apperr.Conflict("invoice %s is %s: %s", id, status, reason)
}

// RecordReminder re-checks the status at write time: a concurrent payment or
// cancellation between the caller's read and this UPDATE surfaces as Conflict
// instead of a reminder against a settled invoice.
func (r *invoiceRepository) RecordReminder(ctx context.Context, id string) error {
	const query = `
		UPDATE invoices
		SET reminder_count = reminder_count + 1, last_reminded_at = now()
		WHERE id = $1 AND status NOT IN ($2, $3)`

	result, err := r.db.ExecContext(ctx, query, id,
		models.InvoiceStatusPaid, models.InvoiceStatusCancelled)
	if err != nil {
		return errors.Wrap(err, "record invoice reminder")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.explainStatusMiss(ctx, id, "reminders do not apply to settled invoices")
	}
	return nil
}

func (r *invoiceRepository) RefreshOverdueFlags(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE invoices
		SET is_overdue = (due_date IS NOT NULL AND due_date < $1 AND status NOT IN ($2, $3))
		WHERE is_overdue <> (due_date IS NOT NULL AND due_date < $1 AND status NOT IN ($2, $3))`

	result, err := r.db.ExecContext(ctx, query, now,
		models.InvoiceStatusPaid, models.InvoiceStatusCancelled)
	if err != nil {
		return 0, errors.Wrap(err, "refresh overdue flags")
	}
	return result.RowsAffected()
}

func (r *invoiceRepository) InvoiceStats(ctx context.Context) (models.LedgerStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE is_overdue),
			COALESCE(SUM(total_cents) FILTER (WHERE status = $2), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE status = $3), 0)
		FROM invoices`

	var stats models.LedgerStats
	err := r.db.QueryRowContext(ctx, query,
		models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusPaid,
	).Scan(
		&stats.InvoicesDraft,
		&stats.InvoicesSent,
		&stats.InvoicesPaid,
		&stats.InvoicesOverdue,
		&stats.OutstandingCents,
		&stats.CollectedCents,
	)
	if err != nil {
		return models.LedgerStats{}, errors.Wrap(err, "query invoice stats")
	}
	return stats, nil
}
