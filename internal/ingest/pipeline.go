// Package ingest orchestrates the capture pipeline for one raw event:
// optional inline classification, fact extraction, app-instance
// resolution, duplicate detection, and persistence. One pass, terminal;
// retries belong to the transport layer that feeds it.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/classify"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/extract"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/instance"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
)

// RawEvent is one captured system notification as delivered by the
// capture collaborator. It exists only for the duration of a pipeline
// pass.
type RawEvent struct {
	Title         string
	Body          string
	PackageName   string
	AndroidUserID *int
	AndroidUID    *int
	PostedAt      time.Time
	ReceivedAt    time.Time
	SourceAppHint string
	ProposedLabel *string
}

// SourceApp is the app attribution used for records and dedup: the
// capture hint when present, the Android package otherwise.
func (ev *RawEvent) SourceApp() string {
	if ev.SourceAppHint != "" {
		return ev.SourceAppHint
	}
	return ev.PackageName
}

// EventStore is the persistence slice the pipeline needs.
type EventStore interface {
	InsertNotification(ctx context.Context, rec *db.NotificationRecord) error
}

// Classifier is the admission decision over raw text.
type Classifier interface {
	Classify(title, body string, amount *decimal.Decimal) classify.Outcome
}

// Extractor pulls structured payment facts out of raw text.
type Extractor interface {
	Extract(title, body, sourceAppHint string) (*extract.Facts, bool)
}

// Resolver attributes the event to a tenant and app instance.
type Resolver interface {
	Resolve(ctx context.Context, deviceID uuid.UUID, packageName string, androidUserID *int, proposedLabel *string) (*instance.Resolution, error)
}

// DuplicateDetector flags re-delivered events.
type DuplicateDetector interface {
	IsDuplicate(ctx context.Context, deviceID uuid.UUID, sourceApp, body string, receivedAt time.Time) (bool, error)
}

// Config holds pipeline behavior switches.
type Config struct {
	// ClassifyInline makes classification a blocking admission gate
	// inside the pipeline. The gateway leaves this off: the capture
	// side filters before transmission and the server records
	// everything it is given, re-checking asynchronously.
	ClassifyInline bool
}

// Result is the terminal state of one pipeline pass.
type Result struct {
	// Record is the persisted record. Nil only when inline
	// classification rejected the event before persistence.
	Record *db.NotificationRecord

	// Outcome is set when inline classification ran.
	Outcome *classify.Outcome

	// Facts is set when extraction matched.
	Facts *extract.Facts
}

// Pipeline wires the stages together.
type Pipeline struct {
	classifier Classifier
	extractor  Extractor
	resolver   Resolver
	dedup      DuplicateDetector
	store      EventStore
	cfg        Config
	logger     *zap.Logger
}

// New creates an ingestion pipeline
func New(classifier Classifier, extractor Extractor, resolver Resolver, dedup DuplicateDetector, store EventStore, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		extractor:  extractor,
		resolver:   resolver,
		dedup:      dedup,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest runs one raw event through the pipeline. Store failures
// propagate to the caller as retryable errors; replaying the same raw
// event is safe because instance creation is idempotent and happens
// before the record insert.
func (p *Pipeline) Ingest(ctx context.Context, deviceID uuid.UUID, ev RawEvent) (*Result, error) {
	start := time.Now()

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = start.UTC()
	}

	result := &Result{}
	sourceApp := ev.SourceApp()

	if p.cfg.ClassifyInline {
		outcome := p.classifier.Classify(ev.Title, ev.Body, nil)
		result.Outcome = &outcome
		metrics.RecordClassifierOutcome(string(outcome.Reason))

		if !outcome.Accepted {
			p.logger.Info("event rejected by inline classification",
				zap.String("device_id", deviceID.String()),
				zap.String("source_app", sourceApp),
				zap.String("reason", string(outcome.Reason)),
			)
			return result, nil
		}
	}

	facts, extracted := p.extractor.Extract(ev.Title, ev.Body, ev.SourceAppHint)
	metrics.RecordExtraction(sourceApp, extracted)
	if extracted {
		result.Facts = facts
	}

	resolution, err := p.resolver.Resolve(ctx, deviceID, ev.PackageName, ev.AndroidUserID, ev.ProposedLabel)
	if err != nil {
		return nil, fmt.Errorf("resolve instance: %w", err)
	}

	isDup, err := p.dedup.IsDuplicate(ctx, deviceID, sourceApp, ev.Body, ev.ReceivedAt)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	rec := &db.NotificationRecord{
		ID:          uuid.New(),
		TenantID:    resolution.TenantID,
		DeviceID:    deviceID,
		SourceApp:   sourceApp,
		Title:       ev.Title,
		Body:        ev.Body,
		Status:      db.StatusPending,
		IsDuplicate: isDup,
		ReceivedAt:  ev.ReceivedAt,
	}
	if resolution.Instance != nil {
		rec.AppInstanceID = &resolution.Instance.ID
	}
	if extracted {
		rec.Sender = &facts.Sender
		amount := facts.Amount
		rec.Amount = &amount
		rec.CurrencyCode = &facts.CurrencyCode
	}

	if err := p.store.InsertNotification(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	metrics.RecordEventIngested(sourceApp, isDup)
	metrics.RecordPipelineLatency(time.Since(start))

	result.Record = rec
	return result, nil
}
