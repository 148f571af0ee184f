package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/auth"
	"github.com/playhive/backend/internal/realtime"
)

const identityKey = "identity"

// RequireUser rejects requests without a valid bearer token and stores the
// resolved identity on the context.
func RequireUser(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		identity := auth.Resolve(jwtSecret, token)
		if identity.Anonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireUser.
func IdentityFrom(c *gin.Context) realtime.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(realtime.Identity); ok {
			return id
		}
	}
	return realtime.Identity{}
}
