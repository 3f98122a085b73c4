package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() successfeedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, charge *successfeedomain.SuccessFeeCharge) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "source_call_id"}},
			DoNothing: true,
		}).
		Create(charge)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByCallID(ctx context.Context, db *gorm.DB, tenantID, callID string) (*successfeedomain.SuccessFeeCharge, error) {
	var items []successfeedomain.SuccessFeeCharge
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

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID string, limit int) ([]successfeedomain.SuccessFeeCharge, error) {
	var items []successfeedomain.SuccessFeeCharge
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListUndispatched returns charges still owed to the provider, oldest first.
// Skipped charges are excluded.
func (r *repo) ListUndispatched(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]successfeedomain.SuccessFeeCharge, error) {
	var items []successfeedomain.SuccessFeeCharge
	err := db.WithContext(ctx).
		Where("dispatched = ? AND dispatch_status IN ? AND created_at < ?",
			false,
			[]successfeedomain.DispatchStatus{
				successfeedomain.DispatchStatusPending,
				successfeedomain.DispatchStatusUnknown,
				successfeedomain.DispatchStatusFailed,
			},
			createdBefore,
		).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkDispatched flips dispatched to true. It reports false when the charge
// was already dispatched.
func (r *repo) MarkDispatched(ctx context.Context, db *gorm.DB, id snowflake.ID, invoiceRef string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE success_fee_charges
		 SET dispatched = ?,
		     dispatch_status = ?,
		     invoice_ref = ?,
		     attempts = attempts + 1,
		     last_error = NULL,
		     dispatched_at = ?,
		     updated_at = ?
		 WHERE id = ? AND dispatched = ?`,
		true,
		successfeedomain.DispatchStatusDispatched,
		invoiceRef,
		at,
		at,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateDispatch(ctx context.Context, db *gorm.DB, id snowflake.ID, update successfeedomain.DispatchUpdate) error {
	var lastErr any
	if update.LastError != "" {
		lastErr = update.LastError
	}
	return db.WithContext(ctx).Exec(
		`UPDATE success_fee_charges
		 SET dispatch_status = ?,
		     attempts = attempts + 1,
		     last_error = ?,
		     updated_at = ?
		 WHERE id = ? AND dispatched = ?`,
		update.Status,
		lastErr,
		update.At,
		id,
		false,
	).Error
}
