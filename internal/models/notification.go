package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventLeadConverted     NotificationEvent = "lead_converted"
	NotificationEventInvoiceSent       NotificationEvent = "invoice_sent"
	NotificationEventInvoicePaid       NotificationEvent = "invoice_paid"
	NotificationEventInvoiceReminder   NotificationEvent = "invoice_reminder"
	NotificationEventPlanOverAllowance NotificationEvent = "plan_over_allowance"
	NotificationEventPackExpiringSoon  NotificationEvent = "pack_expiring_soon"
)

type Notification struct {
	ID             string               `json:"id" db:"id"`
	OrganizationID *string              `json:"organization_id,omitempty" db:"organization_id"`
	EventType      NotificationEvent    `json:"event_type" db:"event_type"`
	Severity       NotificationSeverity `json:"severity" db:"severity"`
	Title          string               `json:"title" db:"title"`
	Message        string               `json:"message" db:"message"`
	Metadata       json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	ReadAt         *time.Time           `json:"read_at,omitempty" db:"read_at"`
}
