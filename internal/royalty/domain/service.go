package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, entries []RoyaltyLedgerEntry) error
	List(ctx context.Context, db *gorm.DB, start, end time.Time) ([]RoyaltyLedgerEntry, error)
}

// Locker serializes overlapping runs for one period across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Service interface {
	// ComputeRoyalties recomputes every active tenant's entry for period
	// from the ledger and returns the stored entries ordered by tenant.
	ComputeRoyalties(ctx context.Context, period Period) ([]RoyaltyLedgerEntry, error)
	ListRoyalties(ctx context.Context, period Period) ([]RoyaltyLedgerEntry, error)
	RenderStatement(ctx context.Context, period Period) ([]byte, error)
}

var (
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrRunInProgress = errors.New("royalty_run_in_progress")
	ErrOperatorScope = errors.New("royalty_requires_operator_scope")
)
