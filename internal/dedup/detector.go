// Package dedup flags re-delivered notification events. Notification
// listeners redeliver, retry, and restart, so duplicate delivery is
// expected traffic, not an anomaly. Duplicates are advisory: they are
// flagged, never dropped, so the audit trail stays complete.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWindow is the symmetric duplicate-detection window applied on
// each side of the event timestamp.
const DefaultWindow = 5 * time.Second

// Store is the event-store query the detector needs.
type Store interface {
	HasDuplicate(ctx context.Context, deviceID uuid.UUID, sourceApp, body string, from, to time.Time) (bool, error)
}

// Detector decides whether an equivalent event already exists within
// the configured time window.
type Detector struct {
	store  Store
	window time.Duration
	logger *zap.Logger
}

// NewDetector creates a duplicate detector. A zero window falls back to
// DefaultWindow.
func NewDetector(store Store, window time.Duration, logger *zap.Logger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{store: store, window: window, logger: logger}
}

// IsDuplicate reports whether a record with the same device, source
// app, and exact body already exists with receivedAt inside
// [target-window, target+window], inclusive on both ends. Two truly
// simultaneous identical events can both pass unflagged; that narrow
// read-then-insert race is accepted because the flag is advisory.
func (d *Detector) IsDuplicate(ctx context.Context, deviceID uuid.UUID, sourceApp, body string, receivedAt time.Time) (bool, error) {
	from := receivedAt.Add(-d.window)
	to := receivedAt.Add(d.window)

	dup, err := d.store.HasDuplicate(ctx, deviceID, sourceApp, body, from, to)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup: %w", err)
	}

	if dup {
		d.logger.Debug("duplicate delivery detected",
			zap.String("device_id", deviceID.String()),
			zap.String("source_app", sourceApp),
			zap.Time("received_at", receivedAt),
		)
	}

	return dup, nil
}
