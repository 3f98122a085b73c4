package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

const (
	metadataTenantID       = "tenant_id"
	metadataSourceCallID   = "source_call_id"
	metadataIdempotencyKey = "idempotency_key"
)

// Provider bills success fees as pending invoice items on the tenant's
// Stripe customer, so they land on the customer's next invoice.
type Provider struct {
	client *client.API
	log    *zap.Logger
}

func New(apiKey string, log *zap.Logger) *Provider {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return NewWithClient(sc, log)
}

func NewWithClient(sc *client.API, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{client: sc, log: log.Named("invoice.stripe")}
}

func (p *Provider) Name() string { return "stripe" }

func (p *Provider) CreateCharge(ctx context.Context, req invoicedomain.ChargeRequest) (invoicedomain.ProviderCharge, error) {
	if strings.TrimSpace(req.CustomerRef) == "" {
		return invoicedomain.ProviderCharge{}, invoicedomain.ErrMissingCustomer
	}

	params := &stripego.InvoiceItemParams{
		Customer:    stripego.String(req.CustomerRef),
		Amount:      stripego.Int64(req.Amount),
		Currency:    stripego.String(strings.ToLower(req.Currency)),
		Description: stripego.String(req.Description),
		Metadata: map[string]string{
			metadataTenantID:       req.TenantID,
			metadataSourceCallID:   req.SourceCallID,
			metadataIdempotencyKey: req.IdempotencyKey,
		},
	}
	params.IdempotencyKey = stripego.String(req.IdempotencyKey)
	params.Context = ctx

	item, err := p.client.InvoiceItems.New(params)
	if err != nil {
		return invoicedomain.ProviderCharge{}, p.mapError(ctx, err)
	}
	return toProviderCharge(item), nil
}

// FindCharge scans the customer's invoice items for one carrying
// idempotencyKey in its metadata.
func (p *Provider) FindCharge(ctx context.Context, customerRef, idempotencyKey string) (*invoicedomain.ProviderCharge, error) {
	if strings.TrimSpace(customerRef) == "" {
		return nil, invoicedomain.ErrMissingCustomer
	}

	params := &stripego.InvoiceItemListParams{
		Customer: stripego.String(customerRef),
	}
	params.Context = ctx

	iter := p.client.InvoiceItems.List(params)
	for iter.Next() {
		item := iter.InvoiceItem()
		if item == nil || item.Metadata[metadataIdempotencyKey] != idempotencyKey {
			continue
		}
		charge := toProviderCharge(item)
		return &charge, nil
	}
	if err := iter.Err(); err != nil {
		return nil, p.mapError(ctx, err)
	}
	return nil, nil
}

func toProviderCharge(item *stripego.InvoiceItem) invoicedomain.ProviderCharge {
	charge := invoicedomain.ProviderCharge{
		Ref:      item.ID,
		Amount:   item.Amount,
		Currency: string(item.Currency),
	}
	if item.Date > 0 {
		charge.CreatedAt = time.Unix(item.Date, 0).UTC()
	}
	return charge
}

// mapError keeps stripe-go types out of the dispatcher. Timeouts mean the
// outcome is unknown; outages and throttling are retryable; anything else
// is a rejection.
func (p *Provider) mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", invoicedomain.ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", invoicedomain.ErrProviderTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %v", invoicedomain.ErrProviderUnavailable, err)
	}

	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", invoicedomain.ErrProviderUnavailable, stripeErr.Msg)
		}
		switch stripeErr.Code {
		case stripego.ErrorCodeRateLimit, stripego.ErrorCodeLockTimeout:
			return fmt.Errorf("%w: %s", invoicedomain.ErrProviderUnavailable, stripeErr.Msg)
		case stripego.ErrorCodeResourceMissing:
			if stripeErr.Param == "customer" {
				return fmt.Errorf("%w: %s", invoicedomain.ErrMissingCustomer, stripeErr.Msg)
			}
		}
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", invoicedomain.ErrProviderUnavailable, stripeErr.Msg)
		}
		p.log.Warn("stripe rejected request",
			zap.String("code", string(stripeErr.Code)),
			zap.Int("http_status", stripeErr.HTTPStatusCode),
		)
		return fmt.Errorf("%w: %s", invoicedomain.ErrProviderRejected, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", invoicedomain.ErrProviderUnavailable, err)
}

var _ invoicedomain.Provider = (*Provider)(nil)
