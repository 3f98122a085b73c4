package domain

import (
	"context"
	"errors"
)

// Provider is the external invoicing system. CreateCharge must honour
// IdempotencyKey; FindCharge returns nil when no charge exists for it.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (ProviderCharge, error)
	FindCharge(ctx context.Context, customerRef, idempotencyKey string) (*ProviderCharge, error)
}

type Dispatcher interface {
	// Dispatch pushes the success-fee charge for (tenantID, callID) to the
	// provider. A charge already dispatched is never sent again.
	Dispatch(ctx context.Context, tenantID, callID string) (DispatchResult, error)
	// Sweep retries charges left pending, unknown or failed.
	Sweep(ctx context.Context, limit int) (SweepResult, error)
}

var (
	ErrProviderTimeout     = errors.New("provider_timeout")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrProviderRejected    = errors.New("provider_rejected")
	ErrMissingCustomer     = errors.New("billing_customer_missing")
)
