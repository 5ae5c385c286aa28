package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/classify"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/sqs"
)

// Repository is the store slice the auditor needs.
type Repository interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*db.NotificationRecord, error)
	GetUnaudited(ctx context.Context, limit int) ([]*db.NotificationRecord, error)
	MarkAudited(ctx context.Context, id uuid.UUID, reason string) error
}

// Checker re-runs the structural admission rules over a stored record.
type Checker interface {
	Audit(body string, amount *decimal.Decimal) classify.Outcome
}

// JobSource feeds the auditor from the queue. Nil means the auditor
// polls the store for unaudited records instead.
type JobSource interface {
	ReceiveJob(ctx context.Context) (*sqs.AuditJob, string, error)
	DeleteMessage(ctx context.Context, receiptHandle string) error
}

// Config holds auditor tuning.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Auditor re-validates persisted records in the background. Its verdict
// is advisory: disagreements are recorded and alerted, and the record
// keeps its pending status until a human reviews it.
type Auditor struct {
	repo    Repository
	checker Checker
	alerter Alerter
	jobs    JobSource
	config  Config
	logger  *zap.Logger
}

// New creates an auditor. Pass a nil jobs source to run in store-polling
// mode, used in deployments without a queue.
func New(repo Repository, checker Checker, alerter Alerter, jobs JobSource, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}

	return &Auditor{
		repo:    repo,
		checker: checker,
		alerter: alerter,
		jobs:    jobs,
		config:  cfg,
		logger:  logger,
	}
}

// Start runs the auditor until the context is cancelled.
func (a *Auditor) Start(ctx context.Context) {
	if a.jobs != nil {
		a.consumeLoop(ctx)
		return
	}
	a.pollLoop(ctx)
}

func (a *Auditor) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auditor stopping")
			return
		default:
		}

		job, receipt, err := a.jobs.ReceiveJob(ctx)
		if err != nil {
			a.logger.Error("failed to receive audit job", zap.Error(err))
			select {
			case <-ctx.Done():
				a.logger.Info("auditor stopping")
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		id, err := uuid.Parse(job.NotificationID)
		if err != nil {
			a.logger.Error("audit job carries an invalid notification id",
				zap.String("notification_id", job.NotificationID),
			)
			_ = a.jobs.DeleteMessage(ctx, receipt)
			continue
		}

		if err := a.auditByID(ctx, id); err != nil {
			a.logger.Error("audit job failed, leaving for redelivery",
				zap.String("notification_id", job.NotificationID),
				zap.Error(err),
			)
			continue
		}

		if err := a.jobs.DeleteMessage(ctx, receipt); err != nil {
			a.logger.Warn("failed to delete processed audit job", zap.Error(err))
		}
	}
}

func (a *Auditor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auditor stopping")
			return
		case <-ticker.C:
			a.processBatch(ctx)
		}
	}
}

func (a *Auditor) processBatch(ctx context.Context) {
	records, err := a.repo.GetUnaudited(ctx, a.config.BatchSize)
	if err != nil {
		a.logger.Error("failed to load unaudited records", zap.Error(err))
		return
	}

	for _, rec := range records {
		if err := a.auditRecord(ctx, rec); err != nil {
			a.logger.Error("audit failed",
				zap.String("notification_id", rec.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (a *Auditor) auditByID(ctx context.Context, id uuid.UUID) error {
	rec, err := a.repo.GetNotification(ctx, id)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec.AuditedAt != nil {
		// Redelivered job for an already audited record.
		return nil
	}
	return a.auditRecord(ctx, rec)
}

func (a *Auditor) auditRecord(ctx context.Context, rec *db.NotificationRecord) error {
	outcome := a.checker.Audit(rec.Body, rec.Amount)
	reason := string(outcome.Reason)

	if !outcome.Accepted {
		metrics.RecordAuditDisagreement(reason)

		alert := &Alert{
			NotificationID: rec.ID,
			DeviceID:       rec.DeviceID,
			SourceApp:      rec.SourceApp,
			Reason:         reason,
			Summary:        summarize(rec),
		}
		if err := a.alerter.Notify(ctx, alert); err != nil {
			// Alert delivery is best effort; the disagreement is
			// already recorded on the row and in metrics.
			a.logger.Warn("audit alert delivery incomplete",
				zap.String("notification_id", rec.ID.String()),
				zap.Error(err),
			)
		}
	}

	if err := a.repo.MarkAudited(ctx, rec.ID, reason); err != nil {
		return fmt.Errorf("mark audited: %w", err)
	}

	a.logger.Debug("record audited",
		zap.String("notification_id", rec.ID.String()),
		zap.String("reason", reason),
		zap.Bool("agreed", outcome.Accepted),
	)

	return nil
}

func summarize(rec *db.NotificationRecord) string {
	amount := "no amount"
	if rec.Amount != nil {
		amount = rec.Amount.String()
		if rec.CurrencyCode != nil {
			amount = *rec.CurrencyCode + " " + amount
		}
	}
	return fmt.Sprintf("source=%s amount=%s received_at=%s",
		rec.SourceApp, amount, rec.ReceivedAt.Format(time.RFC3339))
}
