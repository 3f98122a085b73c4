package domain

import (
	"time"

	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
)

// ChargeRequest is a single success-fee line to bill on the tenant's
// provider customer. IdempotencyKey is identical across every attempt for
// the same charge.
type ChargeRequest struct {
	TenantID       string
	SourceCallID   string
	CustomerRef    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Description    string
}

// ProviderCharge is the provider-side record of a created charge.
type ProviderCharge struct {
	Ref       string
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

type Outcome string

const (
	OutcomeDispatched        Outcome = "dispatched"
	OutcomeAlreadyDispatched Outcome = "already_dispatched"
	OutcomeReconciled        Outcome = "reconciled"
	OutcomeSkipped           Outcome = "skipped"
	OutcomeUnknown           Outcome = "unknown"
	OutcomeFailed            Outcome = "failed"
)

type DispatchResult struct {
	Outcome    Outcome                           `json:"outcome"`
	InvoiceRef string                            `json:"invoice_ref,omitempty"`
	Charge     successfeedomain.SuccessFeeCharge `json:"charge"`
}

type SweepResult struct {
	Scanned    int `json:"scanned"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}
