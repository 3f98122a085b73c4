package repository

import (
	"context"
	"time"

	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() revenuedomain.Repository {
	return &repo{}
}

var tenantCallConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "source_call_id"}},
	DoNothing: true,
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *revenuedomain.RevenueEvent) (bool, error) {
	result := db.WithContext(ctx).Clauses(tenantCallConflict).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByCallID(ctx context.Context, db *gorm.DB, tenantID, callID string) (*revenuedomain.RevenueEvent, error) {
	var items []revenuedomain.RevenueEvent
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND source_call_id = ?", tenantID, callID).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) Sum(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time) (int64, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(recovered_amount), 0) AS total, COUNT(*) AS count
		 FROM revenue_events
		 WHERE tenant_id = ? AND recorded_at >= ? AND recorded_at < ?`,
		tenantID,
		start,
		end,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

// List returns up to limit events ordered by (recorded_at, id), strictly
// after the cursor when one is given.
func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time, after *pagination.Cursor, limit int) ([]revenuedomain.RevenueEvent, error) {
	query := db.WithContext(ctx).
		Where("tenant_id = ? AND recorded_at >= ? AND recorded_at < ?", tenantID, start, end)
	if after != nil {
		query = query.Where("(recorded_at > ? OR (recorded_at = ? AND id > ?))", after.RecordedAt, after.RecordedAt, after.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []revenuedomain.RevenueEvent
	if err := query.Order("recorded_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ActiveTenants(ctx context.Context, db *gorm.DB, start, end time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT tenant_id
		 FROM revenue_events
		 WHERE recorded_at >= ? AND recorded_at < ?
		 ORDER BY tenant_id`,
		start,
		end,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
