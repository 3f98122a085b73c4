package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"github.com/shopspring/decimal"
)

const maxIDLength = 256

type notification struct {
	CallID   *string   `json:"call_id"`
	TenantID *string   `json:"tenant_id"`
	Analysis *analysis `json:"analysis"`
}

type analysis struct {
	Intent *string          `json:"intent"`
	Amount *json.RawMessage `json:"amount"`
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// FractionalAmountMessage is returned verbatim to the caller with reason
// invalid_amount.
const FractionalAmountMessage = "amount must be a whole number of minor units; fractional values are rejected, not rounded"

// Decode turns a raw notification into a Request or a Rejection. Nothing
// downstream re-validates the payload.
func Decode(body []byte) (ingestiondomain.Request, *ingestiondomain.Rejection) {
	var raw notification
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "malformed json")
	}

	callID := trimmed(raw.CallID)
	tenantID := trimmed(raw.TenantID)
	switch {
	case callID == "":
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "call_id is required")
	case tenantID == "":
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "tenant_id is required")
	case len(callID) > maxIDLength || len(tenantID) > maxIDLength:
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "identifier too long")
	case revenuedomain.IsReservedCallID(callID):
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "call_id must not end in "+revenuedomain.ReversalSuffix)
	case raw.Analysis == nil:
		return ingestiondomain.Request{}, ingestiondomain.Reject(ingestiondomain.ReasonInvalidRequest, "analysis is required")
	}

	amount, rejection := decodeAmount(raw.Analysis.Amount)
	if rejection != nil {
		return ingestiondomain.Request{}, rejection
	}

	return ingestiondomain.Request{
		TenantID: tenantID,
		CallID:   callID,
		Intent:   trimmed(raw.Analysis.Intent),
		Amount:   amount,
	}, nil
}

// decodeAmount accepts an absent or null amount as zero. Anything present
// must be a JSON number holding a non-negative whole count of minor units;
// 10.5 is rejected, never rounded or truncated.
func decodeAmount(raw *json.RawMessage) (int64, *ingestiondomain.Rejection) {
	if raw == nil {
		return 0, nil
	}
	literal := strings.TrimSpace(string(*raw))
	if literal == "" || literal == "null" {
		return 0, nil
	}
	if strings.HasPrefix(literal, `"`) {
		return 0, ingestiondomain.Reject(ingestiondomain.ReasonInvalidAmount, "amount must be a number")
	}

	value, err := decimal.NewFromString(literal)
	if err != nil {
		return 0, ingestiondomain.Reject(ingestiondomain.ReasonInvalidAmount, "amount must be a number")
	}
	switch {
	case value.IsNegative():
		return 0, ingestiondomain.Reject(ingestiondomain.ReasonInvalidAmount, "amount must not be negative")
	case !value.Equal(value.Truncate(0)):
		return 0, ingestiondomain.Reject(ingestiondomain.ReasonInvalidAmount, FractionalAmountMessage)
	case value.GreaterThan(maxAmount):
		return 0, ingestiondomain.Reject(ingestiondomain.ReasonInvalidAmount, "amount out of range")
	}
	return value.IntPart(), nil
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
