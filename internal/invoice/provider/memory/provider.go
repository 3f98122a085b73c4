package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
)

// Provider keeps charges in process, keyed like a real provider would key
// them. It backs local runs without provider credentials.
type Provider struct {
	mu      sync.Mutex
	charges map[string]invoicedomain.ProviderCharge
	calls   int
	now     func() time.Time
}

func New() *Provider {
	return &Provider{
		charges: make(map[string]invoicedomain.ProviderCharge),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Provider) Name() string { return "memory" }

func (p *Provider) CreateCharge(ctx context.Context, req invoicedomain.ChargeRequest) (invoicedomain.ProviderCharge, error) {
	if err := ctx.Err(); err != nil {
		return invoicedomain.ProviderCharge{}, fmt.Errorf("%w: %v", invoicedomain.ErrProviderTimeout, err)
	}
	if req.CustomerRef == "" {
		return invoicedomain.ProviderCharge{}, invoicedomain.ErrMissingCustomer
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	key := req.CustomerRef + "|" + req.IdempotencyKey
	if existing, ok := p.charges[key]; ok {
		return existing, nil
	}
	charge := invoicedomain.ProviderCharge{
		Ref:       fmt.Sprintf("mem_%d", len(p.charges)+1),
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: p.now(),
	}
	p.charges[key] = charge
	return charge, nil
}

func (p *Provider) FindCharge(ctx context.Context, customerRef, idempotencyKey string) (*invoicedomain.ProviderCharge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	charge, ok := p.charges[customerRef+"|"+idempotencyKey]
	if !ok {
		return nil, nil
	}
	return &charge, nil
}

// Charges returns the number of distinct charges held.
func (p *Provider) Charges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charges)
}

// Calls returns the number of CreateCharge calls received.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var _ invoicedomain.Provider = (*Provider)(nil)
