package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revshare/internal/config"
	pricingdomain "github.com/smallbiznis/revshare/internal/pricing/domain"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/smallbiznis/revshare/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Pricing *config.PricingConfigHolder
	Tenants tenantdomain.Directory `optional:"true"`
}

// Service prices subscriptions from the current pricing table. It holds no
// mutable state of its own and is safe for concurrent use.
type Service struct {
	log       *zap.Logger
	pricing   *config.PricingConfigHolder
	tenants   tenantdomain.Directory
	discounts []pricingdomain.VolumeDiscount
}

func New(p Params) pricingdomain.Service {
	return &Service{
		log:       p.Log.Named("pricing.service"),
		pricing:   p.Pricing,
		tenants:   p.Tenants,
		discounts: pricingdomain.DefaultVolumeDiscounts,
	}
}

// EffectivePrice returns round_half_even(base(tier) * multiplier(region)).
// Unknown regions price at the base.
func (s *Service) EffectivePrice(tier tenantdomain.Tier, region string) (int64, error) {
	price, _, _, err := s.effective(tier, region)
	return price, err
}

func (s *Service) effective(tier tenantdomain.Tier, region string) (int64, decimal.Decimal, bool, error) {
	if !tier.Valid() {
		return 0, decimal.Zero, false, pricingdomain.ErrUnknownTier
	}
	table := s.pricing.Get()
	base, ok := table.TierPrices[string(tier)]
	if !ok {
		return 0, decimal.Zero, false, pricingdomain.ErrTierNotConfigured
	}

	code := strings.ToUpper(strings.TrimSpace(region))
	multiplier, ok := table.RegionMultipliers[code]
	if !ok {
		s.log.Warn("unknown region, using base price",
			zap.String("region", code),
			zap.String("tier", string(tier)),
		)
		return base, decimal.NewFromInt(1), true, nil
	}
	return money.ApplyRate(base, multiplier), multiplier, false, nil
}

// QuoteForLocations prices locations seats of tier in region with the
// multi-location volume discount applied to the subtotal.
func (s *Service) QuoteForLocations(tier tenantdomain.Tier, region string, locations int) (pricingdomain.Quote, error) {
	if locations < 1 {
		return pricingdomain.Quote{}, pricingdomain.ErrInvalidLocations
	}
	price, multiplier, defaulted, err := s.effective(tier, region)
	if err != nil {
		return pricingdomain.Quote{}, err
	}
	subtotal, err := money.MulInt(price, int64(locations))
	if err != nil {
		return pricingdomain.Quote{}, err
	}

	percent := decimal.Zero
	for _, d := range s.discounts {
		if locations >= d.MinLocations {
			percent = d.Percent
			break
		}
	}
	discount := money.ApplyRate(subtotal, percent.Shift(-2))

	table := s.pricing.Get()
	return pricingdomain.Quote{
		Tier:            tier,
		Region:          strings.ToUpper(strings.TrimSpace(region)),
		Multiplier:      multiplier.String(),
		BasePrice:       table.TierPrices[string(tier)],
		EffectivePrice:  price,
		Locations:       locations,
		Subtotal:        subtotal,
		DiscountPercent: percent.String(),
		Discount:        discount,
		Total:           subtotal - discount,
		RegionDefaulted: defaulted,
	}, nil
}

func (s *Service) QuoteForTenant(ctx context.Context, tenantID string) (pricingdomain.Quote, error) {
	if s.tenants == nil {
		return pricingdomain.Quote{}, tenantdomain.ErrUnknownTenant
	}
	tenant, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return pricingdomain.Quote{}, err
	}
	return s.QuoteForLocations(tenant.Tier, tenant.Region, tenant.LocationCount)
}
