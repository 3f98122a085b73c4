package domain

import (
	"strings"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierGrowth       Tier = "growth"
	TierElite        Tier = "elite"
)

var knownTiers = map[Tier]struct{}{
	TierBasic:        {},
	TierProfessional: {},
	TierGrowth:       {},
	TierElite:        {},
}

func ParseTier(raw string) (Tier, bool) {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownTiers[tier]
	return tier, ok
}

func (t Tier) Valid() bool {
	_, ok := knownTiers[t]
	return ok
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is owned by the account system. This service only reads it.
type Tenant struct {
	ID                 string       `gorm:"primaryKey;type:text" json:"id"`
	Tier               Tier         `gorm:"type:text;not null" json:"tier"`
	Region             string       `gorm:"type:text;not null" json:"region"`
	BillingCustomerRef string       `gorm:"type:text" json:"billing_customer_ref,omitempty"`
	LocationCount      int          `gorm:"not null;default:1" json:"location_count"`
	Status             TenantStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }
