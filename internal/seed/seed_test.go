package seed

import (
	"testing"

	"github.com/glebarez/sqlite"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureDevTenantsIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}))

	require.NoError(t, db.Create(&tenantdomain.Tenant{
		ID: "T1", Tier: tenantdomain.TierBasic, Region: "US", LocationCount: 1, Status: tenantdomain.TenantStatusActive,
	}).Error)

	require.NoError(t, EnsureDevTenants(db))
	require.NoError(t, EnsureDevTenants(db))

	var count int64
	require.NoError(t, db.Model(&tenantdomain.Tenant{}).Count(&count).Error)
	assert.Equal(t, int64(len(DevTenants)), count)

	var t1 tenantdomain.Tenant
	require.NoError(t, db.First(&t1, "id = ?", "T1").Error)
	assert.Equal(t, tenantdomain.TierBasic, t1.Tier)
}

func TestEnsureDevTenantsRequiresHandle(t *testing.T) {
	assert.Error(t, EnsureDevTenants(nil))
}
