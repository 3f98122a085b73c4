package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"gorm.io/gorm"
)

// DispatchUpdate records the outcome of a provider attempt that did not
// complete the charge.
type DispatchUpdate struct {
	Status    DispatchStatus
	LastError string
	At        time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, charge *SuccessFeeCharge) (bool, error)
	FindByCallID(ctx context.Context, db *gorm.DB, tenantID, callID string) (*SuccessFeeCharge, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID string, limit int) ([]SuccessFeeCharge, error)
	ListUndispatched(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]SuccessFeeCharge, error)
	MarkDispatched(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceRef string, at time.Time) (bool, error)
	UpdateDispatch(ctx context.Context, db *gorm.DB, id snowflake.ID, update DispatchUpdate) error
}

type Service interface {
	// ComputeFee creates the charge for event, or returns the existing one
	// unchanged. The bool is true only when this call created it.
	ComputeFee(ctx context.Context, event revenuedomain.RevenueEvent) (SuccessFeeCharge, bool, error)
	GetCharge(ctx context.Context, tenantID, callID string) (SuccessFeeCharge, error)
	ListCharges(ctx context.Context, tenantID string) ([]SuccessFeeCharge, error)
	ListPendingDispatch(ctx context.Context, olderThan time.Duration, limit int) ([]SuccessFeeCharge, error)

	MarkDispatched(ctx context.Context, charge SuccessFeeCharge, invoiceRef string) (SuccessFeeCharge, error)
	MarkUnknown(ctx context.Context, charge SuccessFeeCharge, cause error) error
	MarkFailed(ctx context.Context, charge SuccessFeeCharge, cause error) error
}

var (
	ErrChargeNotFound = errors.New("success_fee_charge_not_found")
	ErrNotChargeable  = errors.New("revenue_event_not_chargeable")
	ErrInvalidEvent   = errors.New("invalid_revenue_event")
)
