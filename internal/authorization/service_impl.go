package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer persists policies in casbin_rule through gorm.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	return prepare(enforcer)
}

// NewMemoryEnforcer keeps policies in process only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	return prepare(enforcer)
}

func prepare(enforcer *casbin.SyncedEnforcer) (*casbin.SyncedEnforcer, error) {
	if err := purgeGroupings(enforcer); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// purgeGroupings drops per-actor g rows. Roles are resolved from the actor
// kind on every request, so casbin_rule only ever holds the p rows below.
func purgeGroupings(enforcer *casbin.SyncedEnforcer) error {
	rules, err := enforcer.GetGroupingPolicy()
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	_, err = enforcer.RemoveGroupingPolicies(rules)
	return err
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize checks actor against object/action in domain. A tenant acts
// only in its own domain; every other kind spans domains and is limited by
// its role's policies.
func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, domain, object, action string) error {
	if actor.Kind == "" || (actor.Kind != ActorSystem && strings.TrimSpace(actor.ID) == "") {
		return ErrInvalidActor
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ErrInvalidDomain
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := roleFor(actor)
	if err != nil {
		return err
	}

	allowed := actor.Kind != ActorTenant || domain == TenantDomain(actor.ID)
	if allowed {
		if allowed, err = s.enforcer.Enforce(role, object, action); err != nil {
			return err
		}
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor.Subject()),
			zap.String("role", role),
			zap.String("domain", domain),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleFor(actor Actor) (string, error) {
	switch actor.Kind {
	case ActorTenant:
		return "role:tenant", nil
	case ActorOperator:
		return "role:operator", nil
	case ActorImpersonator:
		return "role:impersonator", nil
	case ActorSystem:
		return "role:system", nil
	default:
		return "", ErrInvalidActor
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Tenant permissions (own data, read-only)
		{"role:tenant", ObjectRevenue, ActionRevenueView},
		{"role:tenant", ObjectSuccessFee, ActionSuccessFeeView},
		{"role:tenant", ObjectPrice, ActionPriceView},

		// Impersonators display tenant data and never act on it
		{"role:impersonator", ObjectRevenue, ActionRevenueView},
		{"role:impersonator", ObjectSuccessFee, ActionSuccessFeeView},
		{"role:impersonator", ObjectPrice, ActionPriceView},

		// Operator permissions
		{"role:operator", ObjectRevenue, ActionRevenueView},
		{"role:operator", ObjectRevenue, ActionRevenueReverse},
		{"role:operator", ObjectSuccessFee, ActionSuccessFeeView},
		{"role:operator", ObjectPrice, ActionPriceView},
		{"role:operator", ObjectRoyalty, ActionRoyaltyView},
		{"role:operator", ObjectRoyalty, ActionRoyaltyRun},

		// System permissions (scheduler and trigger)
		{"role:system", ObjectRoyalty, ActionRoyaltyView},
		{"role:system", ObjectRoyalty, ActionRoyaltyRun},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
