package authorization

import (
	"context"
	"errors"
)

const (
	ObjectRevenue    = "revenue"
	ObjectSuccessFee = "success_fee"
	ObjectPrice      = "price"
	ObjectRoyalty    = "royalty"
)

const (
	ActionRevenueView    = "revenue.view"
	ActionRevenueReverse = "revenue.reverse"

	ActionSuccessFeeView = "success_fee.view"

	ActionPriceView = "price.view"

	ActionRoyaltyView = "royalty.view"
	ActionRoyaltyRun  = "royalty.run"
)

type Service interface {
	Authorize(ctx context.Context, actor Actor, domain, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidDomain = errors.New("invalid_domain")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
