// Package instance resolves which logical payment-app account produced
// an event. Identity is the (tenant, device, package, android user)
// tuple; the same package under two Android user ids is two instances.
package instance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
)

// Store is the slice of the repository the resolver needs.
type Store interface {
	ResolveTenant(ctx context.Context, deviceID uuid.UUID) (uuid.UUID, error)
	FindOrCreateAppInstance(ctx context.Context, key db.AppInstanceKey, label *string) (*db.AppInstance, bool, error)
}

// Resolution is the outcome of resolving one event. Both fields may be
// nil: no tenant means the device is not linked yet, no instance means
// the event could not be disambiguated (missing Android user id).
// Either way the event is still recordable.
type Resolution struct {
	TenantID *uuid.UUID
	Instance *db.AppInstance
}

// Resolver finds or lazily creates app instances.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a new resolver
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve derives the tenant for the device and finds or creates the
// app instance for the event. The proposed label only applies on first
// creation; an existing instance keeps its stored label no matter what
// the capture path proposes.
func (r *Resolver) Resolve(ctx context.Context, deviceID uuid.UUID, packageName string, androidUserID *int, proposedLabel *string) (*Resolution, error) {
	tenantID, err := r.store.ResolveTenant(ctx, deviceID)
	if errors.Is(err, db.ErrDeviceNotLinked) {
		r.logger.Debug("device not linked to a tenant, skipping instance resolution",
			zap.String("device_id", deviceID.String()),
		)
		return &Resolution{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant for device %s: %w", deviceID, err)
	}

	res := &Resolution{TenantID: &tenantID}

	if androidUserID == nil {
		r.logger.Debug("event has no android user id, cannot disambiguate instance",
			zap.String("device_id", deviceID.String()),
			zap.String("package_name", packageName),
		)
		return res, nil
	}

	key := db.AppInstanceKey{
		TenantID:      tenantID,
		DeviceID:      deviceID,
		PackageName:   packageName,
		AndroidUserID: *androidUserID,
	}

	inst, created, err := r.store.FindOrCreateAppInstance(ctx, key, proposedLabel)
	if err != nil {
		return nil, fmt.Errorf("find or create app instance: %w", err)
	}
	if created {
		metrics.RecordInstanceCreated()
	}

	res.Instance = inst
	return res, nil
}
