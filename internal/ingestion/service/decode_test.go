package service

import (
	"testing"

	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		want   ingestiondomain.Request
		reason ingestiondomain.Reason
	}{
		{
			name: "sale_closed",
			body: `{"call_id":"C1","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":1000}}`,
			want: ingestiondomain.Request{TenantID: "T1", CallID: "C1", Intent: "sale_closed", Amount: 1000},
		},
		{
			name: "amount_absent_defaults_to_zero",
			body: `{"call_id":"C2","tenant_id":"T1","analysis":{"intent":"no_action"}}`,
			want: ingestiondomain.Request{TenantID: "T1", CallID: "C2", Intent: "no_action"},
		},
		{
			name: "amount_null",
			body: `{"call_id":"C3","tenant_id":"T1","analysis":{"intent":"payment_recovered","amount":null}}`,
			want: ingestiondomain.Request{TenantID: "T1", CallID: "C3", Intent: "payment_recovered"},
		},
		{
			name: "exponent_notation",
			body: `{"call_id":"C4","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":1.5e3}}`,
			want: ingestiondomain.Request{TenantID: "T1", CallID: "C4", Intent: "sale_closed", Amount: 1500},
		},
		{
			name: "large_exact_amount",
			body: `{"call_id":"C5","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":9007199254740993}}`,
			want: ingestiondomain.Request{TenantID: "T1", CallID: "C5", Intent: "sale_closed", Amount: 9007199254740993},
		},
		{name: "negative", body: `{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":-1}}`, reason: ingestiondomain.ReasonInvalidAmount},
		{name: "fractional", body: `{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":10.5}}`, reason: ingestiondomain.ReasonInvalidAmount},
		{name: "string_amount", body: `{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":"1000"}}`, reason: ingestiondomain.ReasonInvalidAmount},
		{name: "bool_amount", body: `{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":true}}`, reason: ingestiondomain.ReasonInvalidAmount},
		{name: "overflow", body: `{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":99999999999999999999}}`, reason: ingestiondomain.ReasonInvalidAmount},
		{name: "missing_call_id", body: `{"tenant_id":"T1","analysis":{"intent":"sale_closed"}}`, reason: ingestiondomain.ReasonInvalidRequest},
		{name: "blank_tenant_id", body: `{"call_id":"C","tenant_id":"  ","analysis":{"intent":"sale_closed"}}`, reason: ingestiondomain.ReasonInvalidRequest},
		{name: "reserved_reversal_suffix", body: `{"call_id":"C1:reversal","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":500}}`, reason: ingestiondomain.ReasonInvalidRequest},
		{name: "missing_analysis", body: `{"call_id":"C","tenant_id":"T1"}`, reason: ingestiondomain.ReasonInvalidRequest},
		{name: "malformed", body: `{"call_id":`, reason: ingestiondomain.ReasonInvalidRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, rejection := Decode([]byte(tc.body))
			if tc.reason != "" {
				require.NotNil(t, rejection)
				assert.Equal(t, tc.reason, rejection.Reason)
				return
			}
			require.Nil(t, rejection)
			assert.Equal(t, tc.want, req)
		})
	}
}

func TestRejectionUnwrapsToSentinel(t *testing.T) {
	var err error = ingestiondomain.Reject(ingestiondomain.ReasonUnknownTenant, "T9")
	assert.ErrorIs(t, err, ingestiondomain.ErrUnknownTenant)
	assert.Equal(t, "unknown_tenant: T9", err.Error())
}

func TestDecodeFractionalAmountMessage(t *testing.T) {
	_, rejection := Decode([]byte(`{"call_id":"C","tenant_id":"T1","analysis":{"intent":"sale_closed","amount":999.99}}`))
	require.NotNil(t, rejection)
	assert.Equal(t, ingestiondomain.ReasonInvalidAmount, rejection.Reason)
	assert.Equal(t, "invalid_amount: "+FractionalAmountMessage, rejection.Error())
}
