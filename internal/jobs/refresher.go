package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier-api/internal/notification"
	"github.com/atelierhq/atelier-api/internal/repository"
)

// Refresher runs the periodic ledger maintenance: recomputing the stored
// overdue flag used by reporting indexes and flagging hour packs that have
// entered the expiring-soon window. Read paths derive both facts live; the
// jobs only exist for reporting queries and the notification feed.
type Refresher struct {
	invoices repository.InvoiceRepository
	plans    repository.PlanRepository
	notifier notification.Service
	logger   zerolog.Logger
	cron     *cron.Cron
}

func NewRefresher(db *sql.DB, notifier notification.Service, logger zerolog.Logger) *Refresher {
	return &Refresher{
		invoices: repository.NewInvoiceRepository(db),
		plans:    repository.NewPlanRepository(db),
		notifier: notifier,
		logger:   logger.With().Str("component", "jobs").Logger(),
		cron:     cron.New(),
	}
}

// Start schedules both refresh passes and runs one immediately so a restart
// does not wait a full period to catch up.
func (r *Refresher) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	go r.runOnce()
	r.logger.Info().Str("schedule", schedule).Msg("ledger refresh scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Refresher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r.refreshOverdue(ctx)
	r.flagExpiringPacks(ctx)
}

func (r *Refresher) refreshOverdue(ctx context.Context) {
	changed, err := r.invoices.RefreshOverdueFlags(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Error().Err(err).Msg("overdue flag refresh failed")
		return
	}
	if changed > 0 {
		r.logger.Info().Int64("invoices", changed).Msg("overdue flags updated")
	}
}

func (r *Refresher) flagExpiringPacks(ctx context.Context) {
	packs, err := r.plans.ListPacksEnteringExpiryWindow(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("expiry window scan failed")
		return
	}
	for _, pack := range packs {
		if err := r.notifier.NotifyPackExpiringSoon(ctx, pack); err != nil {
			r.logger.Warn().Err(err).Str("pack_id", pack.ID).Msg("expiry notification failed")
		}
	}
}
