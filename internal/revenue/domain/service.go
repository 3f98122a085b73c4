package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"gorm.io/gorm"
)

type AppendRequest struct {
	TenantID        string
	SourceCallID    string
	RecoveredAmount int64
	Intent          Intent
	RecordedAt      time.Time
	Metadata        map[string]any
}

type ListRequest struct {
	TenantID  string
	Start     time.Time
	End       time.Time
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Events []RevenueEvent `json:"events"`
}

type Repository interface {
	// Insert reports whether the row was written; false means a row with the
	// same (tenant_id, source_call_id) already exists.
	Insert(ctx context.Context, db *gorm.DB, event *RevenueEvent) (bool, error)
	FindByCallID(ctx context.Context, db *gorm.DB, tenantID, callID string) (*RevenueEvent, error)
	Sum(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time) (int64, int64, error)
	List(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time, after *pagination.Cursor, limit int) ([]RevenueEvent, error)
	ActiveTenants(ctx context.Context, db *gorm.DB, start, end time.Time) ([]string, error)
}

// Ledger is the tenant-scoped view of the revenue ledger. Every read is
// restricted to a single tenant and a half-open [start, end) window.
type Ledger interface {
	AppendIfAbsent(ctx context.Context, req AppendRequest) (RevenueEvent, bool, error)
	SumRevenue(ctx context.Context, tenantID string, start, end time.Time) (int64, error)
	ListEvents(ctx context.Context, tenantID string, start, end time.Time) ([]RevenueEvent, error)
	ListEventsPage(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByCallID(ctx context.Context, tenantID, callID string) (RevenueEvent, error)
	Reverse(ctx context.Context, tenantID, callID, reason string) (RevenueEvent, bool, error)
}

// PeriodSummary is one tenant's ledger total over a window.
type PeriodSummary struct {
	TenantID     string
	TotalRevenue int64
	EventCount   int64
}

// OperatorReader is the network-wide view. Only operator jobs depend on it.
type OperatorReader interface {
	ActiveTenants(ctx context.Context, start, end time.Time) ([]string, error)
	Summarize(ctx context.Context, tenantID string, start, end time.Time) (PeriodSummary, error)
}

var (
	ErrLedgerWriteConflict = errors.New("ledger_write_conflict")
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidCallID       = errors.New("invalid_call_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidIntent       = errors.New("invalid_intent")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrEventNotFound       = errors.New("revenue_event_not_found")
	ErrNotReversible       = errors.New("revenue_event_not_reversible")
	ErrCallIDConflict      = errors.New("revenue_call_id_conflict")
)
