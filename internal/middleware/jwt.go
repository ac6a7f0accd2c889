package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/brocker-tv/backend/internal/auth"
	"github.com/brocker-tv/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID (int64) in gin context.
	ContextUserID = "user_id"
	// ContextUsername is the key for the username in gin context.
	ContextUsername = "username"
)

// JWT returns a middleware that validates the session token (cookie or Bearer header) and sets user claims in context.
func JWT(jwtService *auth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c, cookieName)
		if token == "" {
			response.Unauthorized(c, "Not authenticated")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}
