package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	"github.com/edustack/lcm-api/internal/service"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
	"github.com/edustack/lcm-api/pkg/response"
)

// ContextActorKey is the gin context key storing the authenticated
// actor built from the access token claims.
const ContextActorKey = "currentActor"

// JWT protects routes by requiring a valid access token and stores the
// resulting actor in the request context.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, authz.Actor{
			ID:       claims.UserID,
			Roles:    claims.Roles,
			CenterID: claims.CenterID,
		})
		c.Next()
	}
}

// RequireRole blocks requests whose actor lacks every listed role.
// Scope and ownership still get decided downstream; this is only the
// coarse route-level gate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := Actor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if actor.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// Actor extracts the authenticated actor from the gin context.
func Actor(c *gin.Context) (authz.Actor, bool) {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return authz.Actor{}, false
	}
	actor, ok := value.(authz.Actor)
	return actor, ok
}
