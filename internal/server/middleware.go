package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revshare/internal/authorization"
	obscontext "github.com/smallbiznis/revshare/internal/observability/context"
)

const (
	HeaderActor         = "X-Actor"
	HeaderAuthorization = "Authorization"
	contextActorKey     = "actor"
)

// ActorContext reads the caller asserted by the upstream gateway. A missing
// header leaves the request anonymous; a malformed one is refused.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActor))
		if raw == "" {
			c.Next()
			return
		}
		actor, err := authorization.ParseActor(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		setActor(c, actor)
		c.Next()
	}
}

// RoyaltyTriggerAuth admits the scheduled trigger as the system actor when
// it presents the shared bearer secret.
func (s *Server) RoyaltyTriggerAuth() gin.HandlerFunc {
	secret := strings.TrimSpace(s.cfg.RoyaltyTriggerSecret)
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(HeaderAuthorization))
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		setActor(c, authorization.Actor{Kind: authorization.ActorSystem, ID: string(authorization.ActorSystem)})
		c.Next()
	}
}

func setActor(c *gin.Context, actor authorization.Actor) {
	c.Set(contextActorKey, actor)
	ctx := obscontext.WithActor(c.Request.Context(), string(actor.Kind), actor.ID)
	c.Request = c.Request.WithContext(ctx)
}

func actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	if c == nil {
		return authorization.Actor{}, false
	}
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok
}
