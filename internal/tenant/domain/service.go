package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Tenant, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]Tenant, error)
}

// Directory resolves tenant profiles.
type Directory interface {
	Resolve(ctx context.Context, tenantID string) (Tenant, error)
	ResolveMany(ctx context.Context, tenantIDs []string) (map[string]Tenant, error)
}

var (
	ErrUnknownTenant   = errors.New("unknown_tenant")
	ErrInvalidTenantID = errors.New("invalid_tenant_id")
)
