package models

import (
	"testing"
	"time"

	"github.com/atelierhq/atelier-api/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	items := []LineItem{
		{Description: "Design sprint", Quantity: 2, RateCents: 500},
		{Description: "Copywriting", Quantity: 1, RateCents: 1000},
	}

	totals, err := ComputeTotals(items, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), totals.AmountCents)
	assert.Equal(t, int64(0), totals.TaxCents)
	assert.Equal(t, int64(2000), totals.TotalCents)
}

func TestComputeTotalsWithTax(t *testing.T) {
	items := []LineItem{
		{Description: "Retainer", Quantity: 3, RateCents: 12999},
	}

	totals, err := ComputeTotals(items, 3250)
	require.NoError(t, err)
	assert.Equal(t, int64(38997), totals.AmountCents)
	assert.Equal(t, int64(42247), totals.TotalCents)
	assert.Equal(t, totals.AmountCents+totals.TaxCents, totals.TotalCents)
}

func TestComputeTotalsStableUnderRecompute(t *testing.T) {
	items := []LineItem{
		{Description: "Hosting", Quantity: 12, RateCents: 2599},
		{Description: "Support", Quantity: 7, RateCents: 999},
		{Description: "Audit", Quantity: 1, RateCents: 149999},
	}

	first, err := ComputeTotals(items, 1234)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := ComputeTotals(items, 1234)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeTotalsValidation(t *testing.T) {
	cases := map[string][]LineItem{
		"zero quantity":     {{Description: "x", Quantity: 0, RateCents: 100}},
		"negative quantity": {{Description: "x", Quantity: -2, RateCents: 100}},
		"negative rate":     {{Description: "x", Quantity: 1, RateCents: -1}},
		"empty description": {{Description: "", Quantity: 1, RateCents: 100}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeTotals(items, 0)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := ComputeTotals([]LineItem{{Description: "x", Quantity: 1, RateCents: 100}}, -5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestInvoiceDisplayStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	cases := []struct {
		name    string
		invoice Invoice
		want    InvoiceStatus
	}{
		{"sent past due", Invoice{Status: InvoiceStatusSent, DueDate: &past}, InvoiceStatusOverdue},
		{"sent not yet due", Invoice{Status: InvoiceStatusSent, DueDate: &future}, InvoiceStatusSent},
		{"sent without due date", Invoice{Status: InvoiceStatusSent}, InvoiceStatusSent},
		{"paid past due", Invoice{Status: InvoiceStatusPaid, DueDate: &past}, InvoiceStatusPaid},
		{"cancelled past due", Invoice{Status: InvoiceStatusCancelled, DueDate: &past}, InvoiceStatusCancelled},
		{"draft past due", Invoice{Status: InvoiceStatusDraft, DueDate: &past}, InvoiceStatusOverdue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.invoice.DisplayStatus(now))
		})
	}
}

func TestInvoiceCanRemind(t *testing.T) {
	assert.True(t, Invoice{Status: InvoiceStatusDraft}.CanRemind())
	assert.True(t, Invoice{Status: InvoiceStatusSent}.CanRemind())
	assert.False(t, Invoice{Status: InvoiceStatusPaid}.CanRemind())
	assert.False(t, Invoice{Status: InvoiceStatusCancelled}.CanRemind())
}
