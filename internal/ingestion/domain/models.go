package domain

import (
	"strings"
	"time"

	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
)

// Request is a notification that passed boundary decoding. Amount is in
// minor units and never negative.
type Request struct {
	TenantID   string
	CallID     string
	Intent     string
	Amount     int64
	ReceivedAt time.Time
}

type Status string

const (
	StatusRecorded     Status = "recorded"
	StatusDuplicate    Status = "duplicate"
	StatusAcknowledged Status = "acknowledged"
	StatusIgnored      Status = "ignored"
	StatusRejected     Status = "rejected"
)

type Reason string

const (
	ReasonUnknownTenant  Reason = "unknown_tenant"
	ReasonInvalidAmount  Reason = "invalid_amount"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonUnknownIntent  Reason = "unknown_intent"
	ReasonNonQualifying  Reason = "non_qualifying_intent"
)

// Result is returned for every accepted notification, including those
// that record nothing.
type Result struct {
	Status     Status                             `json:"status"`
	Reason     Reason                             `json:"reason,omitempty"`
	Event      *revenuedomain.RevenueEvent        `json:"event,omitempty"`
	SuccessFee *successfeedomain.SuccessFeeCharge `json:"success_fee,omitempty"`
	Dispatch   *invoicedomain.DispatchResult      `json:"dispatch,omitempty"`
}

type IntentClass int

const (
	IntentUnknown IntentClass = iota
	IntentNonQualifying
	IntentQualifying
)

var nonQualifyingIntents = map[string]struct{}{
	"no_action":          {},
	"call_failed":        {},
	"appointment_booked": {},
	"voicemail":          {},
	"callback_requested": {},
	"transferred":        {},
}

// ClassifyIntent sorts an upstream intent label. Labels outside the known
// vocabulary are IntentUnknown.
func ClassifyIntent(intent string) (revenuedomain.Intent, IntentClass) {
	normalized := strings.ToLower(strings.TrimSpace(intent))
	ledgerIntent := revenuedomain.Intent(normalized)
	if ledgerIntent.Qualifying() {
		return ledgerIntent, IntentQualifying
	}
	if _, ok := nonQualifyingIntents[normalized]; ok {
		return ledgerIntent, IntentNonQualifying
	}
	return ledgerIntent, IntentUnknown
}
