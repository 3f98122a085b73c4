package repository

import (
	"context"

	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tenantdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, tier, region, billing_customer_ref, location_count, status, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == "" {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]tenantdomain.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, tier, region, billing_customer_ref, location_count, status, created_at, updated_at
		 FROM tenants WHERE id IN ? ORDER BY id`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
