package middleware

import (
	"strings"

	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/jwt"
	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAdmin checks that the request carries a valid admin bearer token and
// adds its claims to the context
func RequireAdmin(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.FromContext(c, log).Warn("Invalid JWT token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		if claims.Role != jwt.RoleAdmin {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("adminSubject", claims.Subject)
		c.Next()
	}
}
