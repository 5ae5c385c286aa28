package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDeviceNotLinked marks a device that is not attached to any tenant
// yet. Callers treat it as a valid terminal state, not a failure.
var ErrDeviceNotLinked = errors.New("device not linked to a tenant")

// Repository handles database operations for notification records,
// app instances, and the device registry.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ResolveTenant maps a device to its owning tenant. Returns
// ErrDeviceNotLinked when the device is unknown.
func (r *Repository) ResolveTenant(ctx context.Context, deviceID uuid.UUID) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := r.db.Pool().QueryRow(ctx,
		`SELECT tenant_id FROM devices WHERE id = $1`, deviceID,
	).Scan(&tenantID)

	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrDeviceNotLinked
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve tenant: %w", err)
	}

	return tenantID, nil
}

// FindOrCreateAppInstance looks up an instance by its four-part key,
// creating it on first sight. The second return value reports whether a
// new row was created. A stored label is never overwritten here: the
// ON CONFLICT arm writes the label back to itself so concurrent creates
// for the same key return the existing row untouched.
func (r *Repository) FindOrCreateAppInstance(ctx context.Context, key AppInstanceKey, label *string) (*AppInstance, bool, error) {
	inst := &AppInstance{
		TenantID:      key.TenantID,
		DeviceID:      key.DeviceID,
		PackageName:   key.PackageName,
		AndroidUserID: key.AndroidUserID,
	}

	// Fast path: the instance usually exists already.
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, label, created_at
		FROM app_instances
		WHERE tenant_id = $1 AND device_id = $2 AND package_name = $3 AND android_user_id = $4
	`, key.TenantID, key.DeviceID, key.PackageName, key.AndroidUserID,
	).Scan(&inst.ID, &inst.Label, &inst.CreatedAt)

	if err == nil {
		return inst, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("query app instance: %w", err)
	}

	newID := uuid.New()
	err = r.db.Pool().QueryRow(ctx, `
		INSERT INTO app_instances (id, tenant_id, device_id, package_name, android_user_id, label)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, device_id, package_name, android_user_id)
		DO UPDATE SET label = app_instances.label
		RETURNING id, label, created_at
	`, newID, key.TenantID, key.DeviceID, key.PackageName, key.AndroidUserID, label,
	).Scan(&inst.ID, &inst.Label, &inst.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create app instance",
			zap.Error(err),
			zap.String("device_id", key.DeviceID.String()),
			zap.String("package_name", key.PackageName),
		)
		return nil, false, fmt.Errorf("insert app instance: %w", err)
	}

	// A concurrent create makes the ON CONFLICT arm return the other
	// session's row; only a row carrying our generated id was created
	// by this call.
	created := inst.ID == newID
	if created {
		r.logger.Info("app instance created",
			zap.String("instance_id", inst.ID.String()),
			zap.String("device_id", key.DeviceID.String()),
			zap.String("package_name", key.PackageName),
			zap.Int("android_user_id", key.AndroidUserID),
		)
	}

	return inst, created, nil
}

// UpdateInstanceLabel unconditionally overwrites an instance label.
// This is the only sanctioned way to change a label after creation.
func (r *Repository) UpdateInstanceLabel(ctx context.Context, id uuid.UUID, label string) (*AppInstance, error) {
	inst := &AppInstance{ID: id}
	err := r.db.Pool().QueryRow(ctx, `
		UPDATE app_instances
		SET label = $1
		WHERE id = $2
		RETURNING tenant_id, device_id, package_name, android_user_id, label, created_at
	`, label, id,
	).Scan(&inst.TenantID, &inst.DeviceID, &inst.PackageName, &inst.AndroidUserID, &inst.Label, &inst.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("app instance not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update instance label: %w", err)
	}

	r.logger.Info("instance label updated",
		zap.String("instance_id", id.String()),
		zap.String("label", label),
	)

	return inst, nil
}

// ListInstancesByDevice retrieves all app instances seen on a device.
func (r *Repository) ListInstancesByDevice(ctx context.Context, deviceID uuid.UUID) ([]*AppInstance, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, tenant_id, device_id, package_name, android_user_id, label, created_at
		FROM app_instances
		WHERE device_id = $1
		ORDER BY package_name, android_user_id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query app instances: %w", err)
	}
	defer rows.Close()

	var instances []*AppInstance
	for rows.Next() {
		var inst AppInstance
		err := rows.Scan(
			&inst.ID,
			&inst.TenantID,
			&inst.DeviceID,
			&inst.PackageName,
			&inst.AndroidUserID,
			&inst.Label,
			&inst.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan app instance: %w", err)
		}
		instances = append(instances, &inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return instances, nil
}

// InsertNotification inserts a new notification record
func (r *Repository) InsertNotification(ctx context.Context, rec *NotificationRecord) error {
	query := `
		INSERT INTO notifications (
			id, tenant_id, device_id, app_instance_id, source_app,
			title, body, sender, amount, currency_code,
			status, is_duplicate, received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		rec.ID,
		rec.TenantID,
		rec.DeviceID,
		rec.AppInstanceID,
		rec.SourceApp,
		rec.Title,
		rec.Body,
		rec.Sender,
		nullDecimal(rec.Amount),
		rec.CurrencyCode,
		rec.Status,
		rec.IsDuplicate,
		rec.ReceivedAt,
	).Scan(&rec.CreatedAt)

	if err != nil {
		r.logger.Error("failed to insert notification",
			zap.Error(err),
			zap.String("notification_id", rec.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification recorded",
		zap.String("notification_id", rec.ID.String()),
		zap.String("source_app", rec.SourceApp),
		zap.Bool("is_duplicate", rec.IsDuplicate),
	)

	return nil
}

// HasDuplicate reports whether any record with the same device, source
// app, and exact body exists inside the inclusive [from, to] window.
func (r *Repository) HasDuplicate(ctx context.Context, deviceID uuid.UUID, sourceApp, body string, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE device_id = $1 AND source_app = $2 AND body = $3
			  AND received_at BETWEEN $4 AND $5
		)
	`, deviceID, sourceApp, body, from, to).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("query duplicate candidates: %w", err)
	}

	return exists, nil
}

// GetNotification retrieves a notification record by ID
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (*NotificationRecord, error) {
	query := notificationColumns + ` WHERE id = $1`

	rec, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification not found: %s", id)
	}
	if err != nil {
		r.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return rec, nil
}

// ListNotificationsByTenant retrieves records for a tenant with pagination
func (r *Repository) ListNotificationsByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*NotificationRecord, error) {
	query := notificationColumns + `
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// UpdateNotificationStatus applies a human review decision. Only
// pending records can be reviewed; reviewed records stay reviewed.
func (r *Repository) UpdateNotificationStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status != StatusValidated && status != StatusInconsistent {
		return fmt.Errorf("invalid review status: %s", status)
	}

	result, err := r.db.Pool().Exec(ctx, `
		UPDATE notifications
		SET status = $1
		WHERE id = $2 AND status = $3
	`, status, id, StatusPending)
	if err != nil {
		r.logger.Error("failed to update notification status",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("update notification status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification not found or already reviewed: %s", id)
	}

	r.logger.Info("notification reviewed",
		zap.String("notification_id", id.String()),
		zap.String("status", status),
	)

	return nil
}

// GetUnaudited retrieves records the async re-check has not seen yet,
// oldest first.
func (r *Repository) GetUnaudited(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	query := notificationColumns + `
		WHERE audited_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unaudited notifications: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// MarkAudited records the async re-check outcome for a record. Status
// is deliberately left alone: review decisions are human-only.
func (r *Repository) MarkAudited(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE notifications
		SET audit_reason = $1, audited_at = NOW()
		WHERE id = $2
	`, reason, id)
	if err != nil {
		return fmt.Errorf("mark audited: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}

	return nil
}

const notificationColumns = `
	SELECT
		id, tenant_id, device_id, app_instance_id, source_app,
		title, body, sender, amount, currency_code,
		status, is_duplicate, audit_reason, audited_at,
		received_at, created_at
	FROM notifications
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*NotificationRecord, error) {
	var rec NotificationRecord
	var amount decimal.NullDecimal

	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.DeviceID,
		&rec.AppInstanceID,
		&rec.SourceApp,
		&rec.Title,
		&rec.Body,
		&rec.Sender,
		&amount,
		&rec.CurrencyCode,
		&rec.Status,
		&rec.IsDuplicate,
		&rec.AuditReason,
		&rec.AuditedAt,
		&rec.ReceivedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		rec.Amount = &amount.Decimal
	}

	return &rec, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
