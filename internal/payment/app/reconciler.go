/**
 * @description
 * Scheduled reconciliation sweep for the payment service. Records left in
 * `pending` past a grace window mean a saga died mid-flight (process crash,
 * unresolved compensation); the sweep flags them and raises operator alerts.
 * It never mutates balances and never guesses an outcome: resolution is an
 * operator decision.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/paystream/wallet-platform/internal/payment/domain"
	"github.com/paystream/wallet-platform/internal/payment/store"
	"github.com/paystream/wallet-platform/pkg/rabbitmq"
	"github.com/robfig/cron/v3"
)

const stalePendingDiagnostic = "transfer stalled in pending past the grace window; outcome unknown"

// Reconciler periodically sweeps for stale pending transfers.
type Reconciler struct {
	cron     *cron.Cron
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
	schedule string
	grace    time.Duration
}

// NewReconciler creates a reconciler sweeping on the given cron schedule.
// Records younger than the grace window are left alone so in-flight sagas are
// not flagged.
func NewReconciler(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger, schedule string, grace time.Duration) *Reconciler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Reconciler{
		cron:     c,
		repo:     repo,
		producer: producer,
		logger:   logger,
		schedule: schedule,
		grace:    grace,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (r *Reconciler) Start() {
	if _, err := r.cron.AddFunc(r.schedule, r.runSweep); err != nil {
		r.logger.Error("failed to schedule reconciliation sweep", "error", err)
		return
	}
	r.logger.Info("scheduled reconciliation sweep", "schedule", r.schedule, "grace", r.grace.String())
	r.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reconciler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flagged, err := r.SweepStalePending(ctx)
	if err != nil {
		r.logger.Error("reconciliation sweep failed", "error", err)
		return
	}
	if flagged > 0 {
		r.logger.Warn("reconciliation sweep flagged stale transfers", "count", flagged)
	}
}

// SweepStalePending flags every pending record older than the grace window and
// publishes a reconciliation alert for each. It returns the number flagged.
// Records already flagged are skipped so operators are alerted exactly once.
func (r *Reconciler) SweepStalePending(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.grace)
	stale, err := r.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i := range stale {
		record := &stale[i]
		if err := r.repo.FlagForReconciliation(ctx, record.ID, stalePendingDiagnostic); err != nil {
			r.logger.Error("failed to flag stale transfer", "transaction_id", record.ID, "error", err)
			continue
		}
		flagged++
		r.logger.Warn("flagged stale pending transfer", "transaction_id", record.ID, "amount", record.Amount, "created_at", record.CreatedAt)
		r.publishAlert(ctx, record, stalePendingDiagnostic)
	}
	return flagged, nil
}

func (r *Reconciler) publishAlert(ctx context.Context, record *domain.Transaction, diagnostic string) {
	if r.producer == nil {
		return
	}
	alert := rabbitmq.ReconciliationAlert{
		TransactionID: record.ID.String(),
		Amount:        record.Amount,
		Diagnostic:    diagnostic,
		Timestamp:     time.Now().UTC(),
	}
	if record.SenderID != nil {
		alert.SenderID = record.SenderID.String()
	}
	if record.RecipientID != nil {
		alert.RecipientID = record.RecipientID.String()
	}
	if err := r.producer.Publish(ctx, rabbitmq.WalletEventsExchange, rabbitmq.RouteReconciliationRequired, alert); err != nil {
		r.logger.Error("reconciliation alert publish failed", "transaction_id", record.ID, "error", err)
	}
}
