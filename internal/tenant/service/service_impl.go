package service

import (
	"context"
	"strings"

	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo tenantdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo tenantdomain.Repository
}

func New(p Params) tenantdomain.Directory {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("tenant.service"),
		repo: p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, tenantID string) (tenantdomain.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidTenantID
	}
	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	if tenant == nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrUnknownTenant
	}
	return normalize(*tenant), nil
}

// ResolveMany returns the known tenants among tenantIDs. Unknown ids are
// omitted rather than failing the batch.
func (s *Service) ResolveMany(ctx context.Context, tenantIDs []string) (map[string]tenantdomain.Tenant, error) {
	items, err := s.repo.FindByIDs(ctx, s.db, tenantIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]tenantdomain.Tenant, len(items))
	for _, item := range items {
		out[item.ID] = normalize(item)
	}
	if missing := len(tenantIDs) - len(out); missing > 0 {
		s.log.Warn("tenant directory missing entries", zap.Int("missing", missing))
	}
	return out, nil
}

func normalize(t tenantdomain.Tenant) tenantdomain.Tenant {
	t.Tier = tenantdomain.Tier(strings.ToLower(strings.TrimSpace(string(t.Tier))))
	t.Region = strings.ToUpper(strings.TrimSpace(t.Region))
	if t.LocationCount < 1 {
		t.LocationCount = 1
	}
	if t.Status == "" {
		t.Status = tenantdomain.TenantStatusActive
	}
	return t
}
