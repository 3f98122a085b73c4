// Package domain holds the append-only revenue event ledger model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Intent string

const (
	IntentPaymentRecovered Intent = "payment_recovered"
	IntentSaleClosed       Intent = "sale_closed"
	// IntentReversal marks a signed correction of an earlier event.
	IntentReversal Intent = "reversal"
)

// Qualifying reports whether an intent attributes revenue.
func (i Intent) Qualifying() bool {
	return i == IntentPaymentRecovered || i == IntentSaleClosed
}

// ReversalSuffix keys a reversal row. Call IDs carrying it are reserved and
// never accepted from intake.
const ReversalSuffix = ":reversal"

// IsReservedCallID reports whether callID falls in the reversal key space.
func IsReservedCallID(callID string) bool {
	return strings.HasSuffix(strings.TrimSpace(callID), ReversalSuffix)
}

// RevenueEvent is one attributable recovery. (TenantID, SourceCallID) is
// unique; rows are never updated or deleted.
type RevenueEvent struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID        string            `gorm:"type:text;not null;uniqueIndex:ux_revenue_events_tenant_call,priority:1;index:ix_revenue_events_tenant_recorded,priority:1" json:"tenant_id"`
	SourceCallID    string            `gorm:"type:text;not null;uniqueIndex:ux_revenue_events_tenant_call,priority:2" json:"source_call_id"`
	RecoveredAmount int64             `gorm:"not null" json:"recovered_amount"`
	Intent          Intent            `gorm:"type:text;not null" json:"intent"`
	RecordedAt      time.Time         `gorm:"not null;index:ix_revenue_events_tenant_recorded,priority:2;index:ix_revenue_events_recorded" json:"recorded_at"`
	ReversesCallID  *string           `gorm:"type:text" json:"reverses_call_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

func (RevenueEvent) TableName() string { return "revenue_events" }
