package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "pending"
	DispatchStatusUnknown    DispatchStatus = "unknown"
	DispatchStatusFailed     DispatchStatus = "failed"
	DispatchStatusDispatched DispatchStatus = "dispatched"
	DispatchStatusSkipped    DispatchStatus = "skipped"
)

// SuccessFeeCharge is the per-event fee owed by a tenant. The fee fields are
// written once at creation; only the dispatch fields change afterwards, and
// Dispatched never goes back to false.
type SuccessFeeCharge struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID        string         `gorm:"type:text;not null;uniqueIndex:ux_success_fee_charges_tenant_call,priority:1" json:"tenant_id"`
	SourceCallID    string         `gorm:"type:text;not null;uniqueIndex:ux_success_fee_charges_tenant_call,priority:2" json:"source_call_id"`
	RevenueEventID  snowflake.ID   `gorm:"not null" json:"revenue_event_id"`
	RecoveredAmount int64          `gorm:"not null" json:"recovered_amount"`
	FeeRate         string         `gorm:"type:text;not null" json:"fee_rate"`
	FeeAmount       int64          `gorm:"not null" json:"fee_amount"`
	Currency        string         `gorm:"type:text;not null" json:"currency"`
	Dispatched      bool           `gorm:"not null;default:false;index:ix_success_fee_charges_pending,priority:1" json:"dispatched"`
	DispatchStatus  DispatchStatus `gorm:"type:text;not null;index:ix_success_fee_charges_pending,priority:2" json:"dispatch_status"`
	InvoiceRef      *string        `gorm:"type:text" json:"invoice_ref,omitempty"`
	Attempts        int            `gorm:"not null;default:0" json:"attempts"`
	LastError       *string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DispatchedAt    *time.Time     `json:"dispatched_at,omitempty"`
}

func (SuccessFeeCharge) TableName() string { return "success_fee_charges" }

// IdempotencyKey is the provider-side key for this charge. It is stable
// across retries and process restarts.
func (c SuccessFeeCharge) IdempotencyKey() string {
	return "success_fee:" + c.TenantID + ":" + c.SourceCallID
}
