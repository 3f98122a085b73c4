package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revshare/internal/authorization"
	obscontext "github.com/smallbiznis/revshare/internal/observability/context"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
)

// authorizeTenantAction gates a /v1/tenants/:tenant_id route and pins the
// request to that tenant.
func (s *Server) authorizeTenantAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.Param("tenant_id"))
		if tenantID == "" {
			AbortWithError(c, invalidRequest("tenant_id"))
			return
		}
		if err := s.authorize(c, authorization.TenantDomain(tenantID), object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		ctx = obscontext.WithTenantID(ctx, tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorizeNetworkAction gates operator routes that span every tenant.
func (s *Server) authorizeNetworkAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorize(c, authorization.DomainNetwork, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(c *gin.Context, domain, object, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, domain, strings.TrimSpace(object), strings.TrimSpace(action))
}
