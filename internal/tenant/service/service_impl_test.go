package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/smallbiznis/revshare/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDirectory(t *testing.T) (tenantdomain.Directory, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tenantdomain.Tenant{}))

	return New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()}), db
}

func TestResolve(t *testing.T) {
	dir, db := newTestDirectory(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&tenantdomain.Tenant{
		ID: "T1", Tier: "Elite", Region: "mx", LocationCount: 0,
		Status: tenantdomain.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
	}).Error)

	got, err := dir.Resolve(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.TierElite, got.Tier)
	assert.Equal(t, "MX", got.Region)
	assert.Equal(t, 1, got.LocationCount)

	_, err = dir.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, tenantdomain.ErrUnknownTenant)

	_, err = dir.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidTenantID)
}

func TestResolveManySkipsUnknown(t *testing.T) {
	dir, db := newTestDirectory(t)
	now := time.Now().UTC()
	for _, id := range []string{"T1", "T2"} {
		require.NoError(t, db.Create(&tenantdomain.Tenant{
			ID: id, Tier: tenantdomain.TierBasic, Region: "US", LocationCount: 1,
			Status: tenantdomain.TenantStatusActive, CreatedAt: now, UpdatedAt: now,
		}).Error)
	}

	got, err := dir.ResolveMany(context.Background(), []string{"T1", "T2", "T3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "T2")
}
