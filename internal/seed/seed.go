package seed

import (
	"context"
	"errors"
	"time"

	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevTenants are created in non-production environments so the intake and
// pricing paths have something to resolve against.
var DevTenants = []tenantdomain.Tenant{
	{ID: "T1", Tier: tenantdomain.TierElite, Region: "MX", BillingCustomerRef: "cus_dev_t1", LocationCount: 1},
	{ID: "T2", Tier: tenantdomain.TierProfessional, Region: "US", BillingCustomerRef: "cus_dev_t2", LocationCount: 3},
	{ID: "T3", Tier: tenantdomain.TierBasic, Region: "ZZ", LocationCount: 1},
}

// EnsureDevTenants inserts DevTenants, leaving existing rows untouched.
func EnsureDevTenants(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range DevTenants {
			row := t
			row.Status = tenantdomain.TenantStatusActive
			row.CreatedAt = now
			row.UpdatedAt = now
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
