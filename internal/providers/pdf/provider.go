package pdf

import (
	"context"
)

// StatementLine is one tenant row on a royalty statement. Amounts are
// preformatted in major units.
type StatementLine struct {
	TenantID      string
	EventCount    int64
	TotalRevenue  string
	RoyaltyAmount string
}

type StatementData struct {
	Title        string
	Period       string
	PeriodStart  string
	PeriodEnd    string
	RoyaltyRate  string
	Currency     string

	Lines []StatementLine

	TotalRevenue string
	TotalRoyalty string
	TenantCount  int
}

type Provider interface {
	GenerateRoyaltyStatement(ctx context.Context, data StatementData) ([]byte, error)
}
