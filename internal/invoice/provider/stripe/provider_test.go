package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(srv.URL),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	sc := &client.API{}
	sc.Init("sk_test_revshare", &stripego.Backends{API: backend, Connect: backend, Uploads: backend})
	return NewWithClient(sc, zap.NewNop())
}

func TestCreateChargeSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotCustomer, gotMeta string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/invoiceitems", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotKey = r.Header.Get("Idempotency-Key")
		gotCustomer = r.PostForm.Get("customer")
		gotMeta = r.PostForm.Get("metadata[idempotency_key]")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"ii_123","object":"invoiceitem","amount":150,"currency":"usd","date":1757505600}`)
	})

	charge, err := p.CreateCharge(context.Background(), invoicedomain.ChargeRequest{
		TenantID:       "T1",
		SourceCallID:   "C1",
		CustomerRef:    "cus_T1",
		Amount:         150,
		Currency:       "USD",
		IdempotencyKey: "success_fee:T1:C1",
		Description:    "Success fee for call C1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ii_123", charge.Ref)
	assert.Equal(t, int64(150), charge.Amount)
	assert.Equal(t, "success_fee:T1:C1", gotKey)
	assert.Equal(t, "success_fee:T1:C1", gotMeta)
	assert.Equal(t, "cus_T1", gotCustomer)
}

func TestCreateChargeRequiresCustomer(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})
	_, err := p.CreateCharge(context.Background(), invoicedomain.ChargeRequest{Amount: 150})
	assert.ErrorIs(t, err, invoicedomain.ErrMissingCustomer)
}

func TestCreateChargeMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "outage", status: http.StatusInternalServerError, body: `{"error":{"type":"api_error","message":"boom"}}`, want: invoicedomain.ErrProviderUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`, want: invoicedomain.ErrProviderUnavailable},
		{name: "invalid", status: http.StatusBadRequest, body: `{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","message":"bad amount"}}`, want: invoicedomain.ErrProviderRejected},
		{name: "no_customer", status: http.StatusNotFound, body: `{"error":{"type":"invalid_request_error","code":"resource_missing","param":"customer","message":"No such customer"}}`, want: invoicedomain.ErrMissingCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})
			_, err := p.CreateCharge(context.Background(), invoicedomain.ChargeRequest{
				CustomerRef:    "cus_T1",
				Amount:         150,
				Currency:       "usd",
				IdempotencyKey: "success_fee:T1:" + tc.name,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFindChargeMatchesMetadata(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "cus_T1", r.URL.Query().Get("customer"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","url":"/v1/invoiceitems","has_more":false,"data":[
			{"id":"ii_other","object":"invoiceitem","amount":90,"currency":"usd","metadata":{"idempotency_key":"success_fee:T1:C0"}},
			{"id":"ii_match","object":"invoiceitem","amount":150,"currency":"usd","metadata":{"idempotency_key":"success_fee:T1:C1"}}
		]}`)
	})

	found, err := p.FindCharge(context.Background(), "cus_T1", "success_fee:T1:C1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ii_match", found.Ref)

	missing, err := p.FindCharge(context.Background(), "cus_T1", "success_fee:T1:C9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
