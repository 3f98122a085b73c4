package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
)

var (
	ErrUnknownTier       = errors.New("unknown_tier")
	ErrInvalidLocations  = errors.New("invalid_location_count")
	ErrTierNotConfigured = errors.New("tier_not_configured")
)

// VolumeDiscount applies to tenants with at least MinLocations locations.
type VolumeDiscount struct {
	MinLocations int
	Percent      decimal.Decimal
}

// DefaultVolumeDiscounts is ordered by MinLocations descending so the first
// match wins.
var DefaultVolumeDiscounts = []VolumeDiscount{
	{MinLocations: 26, Percent: decimal.NewFromInt(25)},
	{MinLocations: 11, Percent: decimal.NewFromInt(20)},
	{MinLocations: 6, Percent: decimal.NewFromInt(15)},
	{MinLocations: 2, Percent: decimal.NewFromInt(10)},
}

// Quote is a monthly subscription price breakdown in minor units.
type Quote struct {
	Tier            tenantdomain.Tier `json:"tier"`
	Region          string            `json:"region"`
	Multiplier      string            `json:"multiplier"`
	BasePrice       int64             `json:"base_price"`
	EffectivePrice  int64             `json:"effective_price"`
	Locations       int               `json:"locations"`
	Subtotal        int64             `json:"subtotal"`
	DiscountPercent string            `json:"discount_percent"`
	Discount        int64             `json:"discount"`
	Total           int64             `json:"total"`
	RegionDefaulted bool              `json:"region_defaulted"`
}

type Service interface {
	EffectivePrice(tier tenantdomain.Tier, region string) (int64, error)
	QuoteForLocations(tier tenantdomain.Tier, region string, locations int) (Quote, error)
	QuoteForTenant(ctx context.Context, tenantID string) (Quote, error)
}
