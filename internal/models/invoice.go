package models

import (
	"time"

	"github.com/atelierhq/atelier-api/internal/apperr"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"

	// InvoiceStatusOverdue is a display classification, never persisted as
	// the invoice's status column. See Invoice.DisplayStatus.
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// LineItem amounts are integer minor units (cents). RateCents is per unit.
type LineItem struct {
	Description string `json:"description" db:"description"`
	Quantity    int64  `json:"quantity" db:"quantity"`
	RateCents   int64  `json:"rate_cents" db:"rate_cents"`
}

type Invoice struct {
	ID             string        `json:"id" db:"id"`
	Number         string        `json:"number" db:"number"`
	Title          string        `json:"title" db:"title"`
	LineItems      []LineItem    `json:"line_items"`
	AmountCents    int64         `json:"amount_cents" db:"amount_cents"`
	TaxCents       int64         `json:"tax_cents" db:"tax_cents"`
	TotalCents     int64         `json:"total_cents" db:"total_cents"`
	Status         InvoiceStatus `json:"status" db:"status"`
	DueDate        *time.Time    `json:"due_date,omitempty" db:"due_date"`
	PaidAt         *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	ProjectID      *string       `json:"project_id,omitempty" db:"project_id"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// InvoiceTotals is the derived monetary summary of a line-item set.
type InvoiceTotals struct {
	AmountCents int64 `json:"amount_cents"`
	TaxCents    int64 `json:"tax_cents"`
	TotalCents  int64 `json:"total_cents"`
}

// ComputeTotals sums quantity*rate over the line items in integer cents and
// adds tax. Every mutation of line items or tax must run through this before
// the invoice is persisted; totals are never written independently.
func ComputeTotals(items []LineItem, taxCents int64) (InvoiceTotals, error) {
	if taxCents < 0 {
		return InvoiceTotals{}, apperr.Validation("tax must not be negative")
	}
	var amount int64
	for i, item := range items {
		if item.Description == "" {
			return InvoiceTotals{}, apperr.Validation("line item %d: description is required", i+1)
		}
		if item.Quantity <= 0 {
			return InvoiceTotals{}, apperr.Validation("line item %d: quantity must be positive", i+1)
		}
		if item.RateCents < 0 {
			return InvoiceTotals{}, apperr.Validation("line item %d: rate must not be negative", i+1)
		}
		amount += item.Quantity * item.RateCents
	}
	return InvoiceTotals{
		AmountCents: amount,
		TaxCents:    taxCents,
		TotalCents:  amount + taxCents,
	}, nil
}

// IsOverdue reports whether the invoice is past due and still collectible.
func (inv Invoice) IsOverdue(now time.Time) bool {
	if inv.DueDate == nil {
		return false
	}
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusCancelled {
		return false
	}
	return inv.DueDate.Before(now)
}

// DisplayStatus returns the status a consumer should show, substituting the
// derived OVERDUE classification for stale SENT invoices. Persisted overdue
// snapshots exist only for reporting indexes; read paths use this.
func (inv Invoice) DisplayStatus(now time.Time) InvoiceStatus {
	if inv.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// CanRemind reports whether a payment reminder may be sent.
func (inv Invoice) CanRemind() bool {
	return inv.Status != InvoiceStatusPaid && inv.Status != InvoiceStatusCancelled
}
