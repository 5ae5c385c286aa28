package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record status constants. Status is set to pending at creation and is
// only ever changed by an explicit human review action.
const (
	StatusPending      = "pending"
	StatusValidated    = "validated"
	StatusInconsistent = "inconsistent"
)

// AppInstanceKey is the identity of one logical payment-app account on
// one device. It is unique and immutable after creation: two Android
// user ids for the same package on the same device are two instances.
type AppInstanceKey struct {
	TenantID      uuid.UUID
	DeviceID      uuid.UUID
	PackageName   string
	AndroidUserID int
}

// AppInstance is one logical account of a payment app on a device.
// Label is human-curated: the resolver never overwrites it, only the
// explicit label-update operation does.
type AppInstance struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	DeviceID      uuid.UUID `json:"device_id"`
	PackageName   string    `json:"package_name"`
	AndroidUserID int       `json:"android_user_id"`
	Label         *string   `json:"label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NotificationRecord is the durable result of ingesting one captured
// notification. Append-only except for Status (human review) and the
// audit columns written by the async re-check. TenantID and
// AppInstanceID are absent when the device is not linked to a tenant or
// the event could not be disambiguated to an instance.
type NotificationRecord struct {
	ID            uuid.UUID        `json:"id"`
	TenantID      *uuid.UUID       `json:"tenant_id,omitempty"`
	DeviceID      uuid.UUID        `json:"device_id"`
	AppInstanceID *uuid.UUID       `json:"app_instance_id,omitempty"`
	SourceApp     string           `json:"source_app"`
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	Sender        *string          `json:"sender,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	CurrencyCode  *string          `json:"currency_code,omitempty"`
	Status        string           `json:"status"`
	IsDuplicate   bool             `json:"is_duplicate"`
	AuditReason   *string          `json:"audit_reason,omitempty"`
	AuditedAt     *time.Time       `json:"audited_at,omitempty"`
	ReceivedAt    time.Time        `json:"received_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

// HasFacts reports whether extraction produced structured payment facts
// for this record.
func (r *NotificationRecord) HasFacts() bool {
	return r.Sender != nil && r.Amount != nil && r.CurrencyCode != nil
}
