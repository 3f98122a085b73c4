package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Decode validates a raw notification body once, at the boundary.
	Decode(body []byte) (Request, *Rejection)
	Ingest(ctx context.Context, req Request) (Result, error)
}

var (
	ErrUnknownTenant  = errors.New("unknown_tenant")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidRequest = errors.New("invalid_request")
)

// Rejection is a payload fault. It is reported to the caller and never
// retried here.
type Rejection struct {
	Reason  Reason
	Message string
}

func Reject(reason Reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Message
}

func (r *Rejection) Unwrap() error {
	switch r.Reason {
	case ReasonUnknownTenant:
		return ErrUnknownTenant
	case ReasonInvalidAmount:
		return ErrInvalidAmount
	default:
		return ErrInvalidRequest
	}
}
