package authorization

import (
	"strings"
)

type ActorKind string

const (
	ActorTenant       ActorKind = "tenant"
	ActorOperator     ActorKind = "operator"
	ActorImpersonator ActorKind = "impersonator"
	ActorSystem       ActorKind = "system"
)

// DomainNetwork scopes operator-only resources such as royalties.
const DomainNetwork = "network"

// Actor identifies the caller. It is asserted by the upstream gateway; this
// service does not authenticate it.
type Actor struct {
	Kind ActorKind
	ID   string
}

// ParseActor reads "tenant:<id>", "operator:<id>", "impersonator:<id>" or
// "system".
func ParseActor(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == string(ActorSystem) {
		return Actor{Kind: ActorSystem, ID: string(ActorSystem)}, nil
	}
	kind, id, ok := strings.Cut(raw, ":")
	id = strings.TrimSpace(id)
	// Grouping domains are key-matched, so a wildcard id would widen scope.
	if !ok || id == "" || strings.ContainsAny(id, "*:") {
		return Actor{}, ErrInvalidActor
	}
	switch ActorKind(kind) {
	case ActorTenant, ActorOperator, ActorImpersonator:
		return Actor{Kind: ActorKind(kind), ID: id}, nil
	default:
		return Actor{}, ErrInvalidActor
	}
}

func (a Actor) Subject() string {
	if a.Kind == ActorSystem {
		return string(ActorSystem)
	}
	return string(a.Kind) + ":" + a.ID
}

// ReadOnly reports whether the actor may only view data.
func (a Actor) ReadOnly() bool {
	return a.Kind == ActorImpersonator
}

func TenantDomain(tenantID string) string {
	return "tenant:" + strings.TrimSpace(tenantID)
}
