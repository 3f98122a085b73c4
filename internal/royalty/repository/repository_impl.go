package repository

import (
	"context"
	"time"

	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() royaltydomain.Repository {
	return &repo{}
}

// Upsert replaces the derived columns of existing entries. The id of an
// existing row is kept.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entries []royaltydomain.RoyaltyLedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period_start"}, {Name: "period_end"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_revenue",
				"event_count",
				"royalty_rate",
				"royalty_amount",
			}),
		}).
		Create(&entries).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, start, end time.Time) ([]royaltydomain.RoyaltyLedgerEntry, error) {
	var items []royaltydomain.RoyaltyLedgerEntry
	err := db.WithContext(ctx).
		Where("period_start = ? AND period_end = ?", start, end).
		Order("tenant_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
