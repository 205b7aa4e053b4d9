package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("channel", channel).
		Msg("failed to deliver notification")
}

func notifierChannelName(n Notifier) string {
	switch n.(type) {
	case *SMTPMailer:
		return "email"
	default:
		return "unknown"
	}
}
