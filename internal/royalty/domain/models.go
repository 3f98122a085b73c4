package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RoyaltyLedgerEntry is derived from the revenue ledger and replaced on
// every run. It has no wall-clock columns so identical ledger contents give
// identical entries.
type RoyaltyLedgerEntry struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      string       `gorm:"type:text;not null;uniqueIndex:ux_royalty_entries_tenant_period,priority:1" json:"tenant_id"`
	PeriodStart   time.Time    `gorm:"not null;uniqueIndex:ux_royalty_entries_tenant_period,priority:2;index:ix_royalty_entries_period,priority:1" json:"period_start"`
	PeriodEnd     time.Time    `gorm:"not null;uniqueIndex:ux_royalty_entries_tenant_period,priority:3;index:ix_royalty_entries_period,priority:2" json:"period_end"`
	TotalRevenue  int64        `gorm:"not null" json:"total_revenue"`
	EventCount    int64        `gorm:"not null" json:"event_count"`
	RoyaltyRate   string       `gorm:"type:text;not null" json:"royalty_rate"`
	RoyaltyAmount int64        `gorm:"not null" json:"royalty_amount"`
}

func (RoyaltyLedgerEntry) TableName() string { return "royalty_ledger_entries" }

// Summary totals a period's entries across the network.
type Summary struct {
	Period        string `json:"period"`
	Tenants       int    `json:"tenants"`
	TotalRevenue  int64  `json:"total_revenue"`
	RoyaltyAmount int64  `json:"royalty_amount"`
}

func Summarize(period Period, entries []RoyaltyLedgerEntry) Summary {
	summary := Summary{Period: period.Label(), Tenants: len(entries)}
	for _, e := range entries {
		summary.TotalRevenue += e.TotalRevenue
		summary.RoyaltyAmount += e.RoyaltyAmount
	}
	return summary
}
