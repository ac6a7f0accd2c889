package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/brocker-tv/backend/pkg/response"
)

// RequireLocalUser allows the request only when the :localUser path parameter
// names the authenticated user. Must run after JWT.
func RequireLocalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := c.Get(ContextUsername)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if name, _ := username.(string); name == "" || name != c.Param("localUser") {
			response.Forbidden(c, "not your account")
			c.Abort()
			return
		}
		c.Next()
	}
}
