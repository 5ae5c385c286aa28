// Package worker runs the asynchronous audit pass. Every persisted
// record is re-checked against the structural admission rules; when the
// server disagrees with the capture-side decision, operators get an
// alert and the record is left for human review. The worker never
// mutates record status.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alert describes one audit disagreement for operator notification.
type Alert struct {
	NotificationID uuid.UUID `json:"notification_id"`
	DeviceID       uuid.UUID `json:"device_id"`
	SourceApp      string    `json:"source_app"`
	Reason         string    `json:"reason"`
	Summary        string    `json:"summary"`
}

// Alerter delivers audit alerts over one channel.
type Alerter interface {
	Notify(ctx context.Context, alert *Alert) error
	Name() string
}

// MultiAlerter fans an alert out to every configured channel. A failed
// channel does not stop the others; failures are joined and returned.
type MultiAlerter struct {
	alerters []Alerter
	logger   *zap.Logger
}

// NewMultiAlerter creates a fan-out over the given channels.
func NewMultiAlerter(logger *zap.Logger, alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger,
	}
}

// Notify delivers the alert to all channels.
func (m *MultiAlerter) Notify(ctx context.Context, alert *Alert) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Notify(ctx, alert); err != nil {
			m.logger.Warn("alert channel failed",
				zap.String("channel", a.Name()),
				zap.String("notification_id", alert.NotificationID.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name identifies the fan-out in logs.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// LogAlerter writes alerts to the log only. Used in development and as
// the fallback when no delivery channel is configured.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-only alert channel.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Notify logs the alert.
func (s *LogAlerter) Notify(ctx context.Context, alert *Alert) error {
	s.logger.Warn("audit disagreement",
		zap.String("notification_id", alert.NotificationID.String()),
		zap.String("device_id", alert.DeviceID.String()),
		zap.String("source_app", alert.SourceApp),
		zap.String("reason", alert.Reason),
		zap.String("summary", alert.Summary),
	)
	return nil
}

// Name identifies the channel in logs.
func (s *LogAlerter) Name() string {
	return "log"
}
