package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/models"
	"github.com/atelierhq/atelier-api/internal/repository"
)

type Event struct {
	OrganizationID string
	Event          models.NotificationEvent
	Severity       models.NotificationSeverity
	Title          string
	Message        string
	Metadata       map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyLeadConverted(ctx context.Context, leadID, leadName string) error
	NotifyInvoiceSent(ctx context.Context, invoice models.Invoice) error
	NotifyInvoicePaid(ctx context.Context, invoice models.Invoice) error
	NotifyPlanOverAllowance(ctx context.Context, organizationID string, plan models.MaintenancePlan) error
	NotifyPackExpiringSoon(ctx context.Context, pack models.HourPack) error
	ListRecent(ctx context.Context, organizationID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, organizationID, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

// Publish persists the event and fans it out to the configured channels.
// Channel failures are logged and swallowed: the feed entry is the record,
// delivery is best-effort.
func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	message := strings.TrimSpace(evt.Message)
	if title == "" {
		title = string(evt.Event)
	}
	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  message,
		Metadata: evt.Metadata,
	}
	if oid := strings.TrimSpace(evt.OrganizationID); oid != "" {
		params.OrganizationID = &oid
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyLeadConverted(ctx context.Context, leadID, leadName string) error {
	_, err := s.Publish(ctx, Event{
		Event:    models.NotificationEventLeadConverted,
		Severity: models.NotificationSeverityInfo,
		Title:    fmt.Sprintf("Lead converted: %s", leadName),
		Message:  fmt.Sprintf("Lead %q reached the converted stage and is ready for project creation.", leadName),
		Metadata: map[string]interface{}{
			"lead_id": leadID,
		},
	})
	return err
}

func (s *service) NotifyInvoiceSent(ctx context.Context, invoice models.Invoice) error {
	_, err := s.Publish(ctx, Event{
		OrganizationID: invoice.OrganizationID,
		Event:          models.NotificationEventInvoiceSent,
		Severity:       models.NotificationSeverityInfo,
		Title:          fmt.Sprintf("Invoice sent: %s", invoice.Number),
		Message:        fmt.Sprintf("Invoice %s for $%.2f has been sent.", invoice.Number, float64(invoice.TotalCents)/100),
		Metadata: map[string]interface{}{
			"invoice_id": invoice.ID,
		},
	})
	return err
}

func (s *service) NotifyInvoicePaid(ctx context.Context, invoice models.Invoice) error {
	_, err := s.Publish(ctx, Event{
		OrganizationID: invoice.OrganizationID,
		Event:          models.NotificationEventInvoicePaid,
		Severity:       models.NotificationSeverityInfo,
		Title:          fmt.Sprintf("Invoice paid: %s", invoice.Number),
		Message:        fmt.Sprintf("Invoice %s for $%.2f has been paid.", invoice.Number, float64(invoice.TotalCents)/100),
		Metadata: map[string]interface{}{
			"invoice_id": invoice.ID,
		},
	})
	return err
}

func (s *service) NotifyPlanOverAllowance(ctx context.Context, organizationID string, plan models.MaintenancePlan) error {
	_, err := s.Publish(ctx, Event{
		OrganizationID: organizationID,
		Event:          models.NotificationEventPlanOverAllowance,
		Severity:       models.NotificationSeverityWarning,
		Title:          "Maintenance plan over allowance",
		Message: fmt.Sprintf("Plan %s has used %.1f of %.1f included hours.",
			plan.ID, plan.HoursUsed.Hours(), plan.HoursIncluded.Hours()),
		Metadata: map[string]interface{}{
			"plan_id": plan.ID,
		},
	})
	return err
}

func (s *service) NotifyPackExpiringSoon(ctx context.Context, pack models.HourPack) error {
	_, err := s.Publish(ctx, Event{
		Event:    models.NotificationEventPackExpiringSoon,
		Severity: models.NotificationSeverityWarning,
		Title:    "Hour pack expiring soon",
		Message: fmt.Sprintf("Hour pack %s has %.1f hours left and expires on %s.",
			pack.ID, pack.HoursRemaining.Hours(), pack.ExpiresAt.Format("January 2, 2006")),
		Metadata: map[string]interface{}{
			"pack_id": pack.ID,
			"plan_id": pack.PlanID,
		},
	})
	return err
}

func (s *service) ListRecent(ctx context.Context, organizationID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, organizationID, limit)
}

func (s *service) MarkRead(ctx context.Context, organizationID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, organizationID, notificationID)
}
