// Package tenantctx pins a request or job to a single tenant so that
// services can refuse work for any other tenant.
package tenantctx

import (
	"context"
	"errors"
	"strings"
)

type keyType string

const (
	TenantIDKey keyType = "tenant_id"
)

var ErrScopeMismatch = errors.New("tenant_scope_mismatch")

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, strings.TrimSpace(tenantID))
}

func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TenantIDKey).(string)
	return id, ok && id != ""
}

// Check fails when ctx is pinned to a tenant other than tenantID. An
// unpinned context passes.
func Check(ctx context.Context, tenantID string) error {
	scoped, ok := TenantID(ctx)
	if !ok || scoped == tenantID {
		return nil
	}
	return ErrScopeMismatch
}
