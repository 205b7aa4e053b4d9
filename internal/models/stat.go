package models

// PipelineStageCount holds the lead count for one board column.
type PipelineStageCount struct {
	Stage LeadStatus `json:"stage" db:"stage"`
	Count int        `json:"count" db:"count"`
}

// LedgerStats is the reporting snapshot served to the admin dashboard.
// Overdue counts here come from the periodically persisted flag and may lag
// the derived view by one refresh interval.
type LedgerStats struct {
	Pipeline         []PipelineStageCount `json:"pipeline"`
	InvoicesDraft    int                  `json:"invoices_draft"`
	InvoicesSent     int                  `json:"invoices_sent"`
	InvoicesPaid     int                  `json:"invoices_paid"`
	InvoicesOverdue  int                  `json:"invoices_overdue"`
	OutstandingCents int64                `json:"outstanding_cents"`
	CollectedCents   int64                `json:"collected_cents"`
	ActivePlans      int                  `json:"active_plans"`
	OpenChanges      int                  `json:"open_change_requests"`
}
